package ipc

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// CipherContext holds a partial key/IV/ciphertext triple. Members persist
// until Open consumes them.
type CipherContext struct {
	key  []byte
	iv   []byte
	data []byte
}

// SetKey replaces the key.
func (c *CipherContext) SetKey(key []byte) { c.key = clone(key) }

// SetIV replaces the IV.
func (c *CipherContext) SetIV(iv []byte) { c.iv = clone(iv) }

// SetData replaces the ciphertext.
func (c *CipherContext) SetData(data []byte) { c.data = clone(data) }

// Ready reports whether all three members are present and non-empty.
func (c *CipherContext) Ready() bool {
	return len(c.key) > 0 && len(c.iv) > 0 && len(c.data) > 0
}

// Reset discards the triple.
func (c *CipherContext) Reset() {
	c.key, c.iv, c.data = nil, nil, nil
}

// Open decrypts the ciphertext with AES-CBC and resets the triple whether or
// not decryption succeeds. Padding is left in place; the structured decoder
// reads only the first object.
func (c *CipherContext) Open() ([]byte, error) {
	key, iv, data := c.key, c.iv, c.data
	c.Reset()
	return Decrypt(key, iv, data)
}

// Decrypt runs AES-CBC over data. The key selects AES-128, -192 or -256.
func Decrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorCipher, Msg: "invalid key", Err: err}
	}
	if len(iv) != aes.BlockSize {
		return nil, &FrameError{
			Kind: FrameErrorCipher,
			Msg:  fmt.Sprintf("iv is %d bytes, want %d", len(iv), aes.BlockSize),
		}
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, &FrameError{
			Kind: FrameErrorCipher,
			Msg:  fmt.Sprintf("ciphertext of %d bytes is not a whole number of blocks", len(data)),
		}
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// Encrypt runs AES-CBC with PKCS#7 padding. Used by the datagram tooling and
// tests to produce traffic in the hook's format.
func Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv is %d bytes, want %d", len(iv), aes.BlockSize)
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return buf, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

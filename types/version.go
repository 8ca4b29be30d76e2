package types

// Version is the canonical project version.
// The CLI and the renderer payload contract share this version.
const Version = "0.3.0"

// PayloadContractVersion is the version stamped on every payload handed to a
// renderer. Bumped when the payload shape changes incompatibly.
const PayloadContractVersion = "0.2.0"

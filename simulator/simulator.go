// Package simulator talks to the external race simulator: it builds the
// request from the live skill inventory, runs the simulator as a subprocess
// and folds its answer into per-skill summaries.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pithecene-io/juicer/log"
	"github.com/pithecene-io/juicer/tracker"
)

// DefaultIterations is the number of simulated races per request.
const DefaultIterations = 2000

// styleNames maps race_running_style to the simulator's style codes.
var styleNames = map[int]string{
	1: "NIGE",
	2: "SEN",
	3: "SASI",
	4: "OI",
}

// StyleName returns the simulator code for a running style. Unknown styles
// fall back to NIGE.
func StyleName(style int) string {
	if s, ok := styleNames[style]; ok {
		return s
	}
	return "NIGE"
}

// UmaStatus is the runner the simulator races with.
type UmaStatus struct {
	CharaName   string `json:"charaName"`
	Speed       int    `json:"speed"`
	Stamina     int    `json:"stamina"`
	Power       int    `json:"power"`
	Guts        int    `json:"guts"`
	Wisdom      int    `json:"wisdom"`
	Condition   string `json:"condition"`
	Style       string `json:"style"`
	DistanceFit string `json:"distanceFit"`
	SurfaceFit  string `json:"surfaceFit"`
	StyleFit    string `json:"styleFit"`
	Popularity  int    `json:"popularity"`
	GateNumber  int    `json:"gateNumber"`
}

// Track is the simulated course.
type Track struct {
	Location  int    `json:"location"`
	Course    int    `json:"course"`
	Condition string `json:"condition"`
	GateCount int    `json:"gateCount"`
}

// BaseSetting groups the fixed race environment.
type BaseSetting struct {
	UmaStatus UmaStatus `json:"umaStatus"`
	Track     Track     `json:"track"`
}

// Request is the simulator's input document.
type Request struct {
	Base               BaseSetting `json:"baseSetting"`
	AcquiredSkillIDs   []int       `json:"acquiredSkillIds"`
	UnacquiredSkillIDs []int       `json:"unacquiredSkillIds"`
	SkillHints         map[int]int `json:"skillHints"`
	Iterations         int         `json:"iterations"`
}

// TimeSavedStats describes the distribution of time saved by one skill.
// Times are in seconds; negative means faster.
type TimeSavedStats struct {
	Mean        float64 `json:"mean"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	BinMin      float64 `json:"binMin"`
	BinWidth    float64 `json:"binWidth"`
	Frequencies []int   `json:"frequencies"`
}

// Candidate is the simulator's result for one unacquired skill.
type Candidate struct {
	TimeSavedStats *TimeSavedStats `json:"timeSavedStats,omitempty"`
}

// Response is the simulator's output document.
type Response struct {
	Baseline   map[string]any       `json:"baselineStats,omitempty"`
	Candidates map[string]Candidate `json:"candidates,omitempty"`
}

// Empty reports whether the response carries no usable results.
func (r *Response) Empty() bool {
	return r == nil || r.Baseline == nil || r.Candidates == nil
}

// Client runs one simulation.
type Client interface {
	Simulate(ctx context.Context, req Request) (*Response, error)
}

// NewRequest builds a request from the inventory. Only unacquired skills are
// candidates.
func NewRequest(inv tracker.Inventory, iterations int) Request {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	hints := make(map[int]int, len(inv.Hinted))
	for k, v := range inv.Hinted {
		hints[k] = v
	}
	acquired := append([]int{}, inv.Acquired...)
	return Request{
		Base: BaseSetting{
			UmaStatus: UmaStatus{
				CharaName:   "Place Holder",
				Speed:       1200,
				Stamina:     1200,
				Power:       1000,
				Guts:        400,
				Wisdom:      1200,
				Condition:   "BEST",
				Style:       StyleName(inv.Style),
				DistanceFit: "A",
				SurfaceFit:  "A",
				StyleFit:    "A",
				Popularity:  1,
				GateNumber:  1,
			},
			Track: Track{Location: 10006, Course: 10611, Condition: "GOOD", GateCount: 9},
		},
		AcquiredSkillIDs:   acquired,
		UnacquiredSkillIDs: inv.Unacquired(),
		SkillHints:         hints,
		Iterations:         iterations,
	}
}

// ExecClient runs the simulator binary at Path with the request JSON as its
// only argument and reads the response JSON from stdout.
type ExecClient struct {
	Path   string
	Logger *log.Logger
}

// Simulate implements Client. On any failure it returns an empty response
// together with the error.
func (c *ExecClient) Simulate(ctx context.Context, req Request) (*Response, error) {
	logger := c.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return &Response{}, fmt.Errorf("encode simulator request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, string(payload))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if s := strings.TrimSpace(stderr.String()); s != "" {
		logger.Debug("simulator output", map[string]any{"stderr": s})
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			logger.Error("simulator crashed", map[string]any{
				"exit_code": exitErr.ExitCode(),
				"stderr":    stderr.String(),
			})
			return &Response{}, fmt.Errorf("simulator exited with code %d: %w", exitErr.ExitCode(), runErr)
		}
		logger.Error("simulator could not start", map[string]any{"path": c.Path, "error": runErr.Error()})
		return &Response{}, fmt.Errorf("run simulator %s: %w", c.Path, runErr)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		logger.Error("simulator returned invalid JSON", map[string]any{"stdout": stdout.String()})
		return &Response{}, fmt.Errorf("decode simulator response: %w", err)
	}
	return &resp, nil
}

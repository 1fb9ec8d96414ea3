// ABOUTME: Utility pack: arithmetic, date/time conversion, and bounded waits.
// ABOUTME: Requires the "utility" capability.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/toolerr"
)

// DefaultMaxWait bounds wait_operation when no limit is configured.
const DefaultMaxWait = 5 * time.Minute

// UtilityPack creates the utility pack. maxWait bounds wait_operation.
func UtilityPack(maxWait time.Duration) *packs.BuiltinPack {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	u := &utilityHandlers{maxWait: maxWait, now: time.Now, sleep: time.Sleep}
	return &packs.BuiltinPack{
		ID: "builtin:utility",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "math_operation",
					Description:          "Arithmetic: add, subtract, multiply, divide, power, sqrt (sqrt uses only a)",
					InputSchemaJSON:      `{"type":"object","properties":{"operation":{"type":"string","enum":["add","subtract","multiply","divide","power","sqrt"]},"a":{"type":"number"},"b":{"type":"number"}},"required":["operation","a"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"result":{"type":"number"}},"required":["result"]}`,
					RequiredCapabilities: []string{CapUtility},
				},
				Handler: u.Math,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "time_operation",
					Description:          "Time: now, today, timestamp, format (dt + strftime fmt), parse (date_str + strftime fmt)",
					InputSchemaJSON:      `{"type":"object","properties":{"operation":{"type":"string","enum":["now","today","timestamp","format","parse"]},"dt":{"type":"string","description":"RFC 3339 or ISO 8601 date-time"},"fmt":{"type":"string","description":"strftime pattern, e.g. %Y-%m-%d"},"date_str":{"type":"string"}},"required":["operation"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"result":{"type":["string","number"]}},"required":["result"]}`,
					RequiredCapabilities: []string{CapUtility},
				},
				Handler: u.Time,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "wait_operation",
					Description:          fmt.Sprintf("Wait for a number of seconds (at most %s). mode is blocking or async.", maxWait),
					InputSchemaJSON:      `{"type":"object","properties":{"seconds":{"type":"number","minimum":0},"mode":{"type":"string","enum":["blocking","async"],"default":"blocking"}},"required":["seconds"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`,
					RequiredCapabilities: []string{CapUtility},
					TimeoutSeconds:       timeoutSeconds(maxWait, 10*time.Second),
				},
				Handler: u.Wait,
			},
		},
	}
}

type utilityHandlers struct {
	maxWait time.Duration
	now     func() time.Time
	sleep   func(time.Duration)
}

type mathInput struct {
	Operation string   `json:"operation"`
	A         *float64 `json:"a"`
	B         *float64 `json:"b"`
}

func (u *utilityHandlers) Math(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "math_operation"
	var in mathInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Operation == "" {
		return nil, toolerr.Missing(op, "operation")
	}
	if in.A == nil {
		return nil, toolerr.Missing(op, "a")
	}
	a := *in.A

	binary := func() (float64, error) {
		if in.B == nil {
			return 0, toolerr.Missing(op, "b")
		}
		return *in.B, nil
	}

	var result float64
	switch in.Operation {
	case "add", "subtract", "multiply", "divide", "power":
		b, err := binary()
		if err != nil {
			return nil, err
		}
		switch in.Operation {
		case "add":
			result = a + b
		case "subtract":
			result = a - b
		case "multiply":
			result = a * b
		case "divide":
			if b == 0 {
				return nil, toolerr.Domain(op, "division by zero")
			}
			result = a / b
		case "power":
			result = math.Pow(a, b)
		}
	case "sqrt":
		if a < 0 {
			return nil, toolerr.Domain(op, "negative input")
		}
		result = math.Sqrt(a)
	default:
		return nil, toolerr.Invalid(op, "operation", fmt.Sprintf("unsupported operation: %s", in.Operation))
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, toolerr.Domain(op, "result is not a finite number")
	}
	return encode(map[string]float64{"result": result})
}

type timeInput struct {
	Operation string `json:"operation"`
	DT        string `json:"dt"`
	Fmt       string `json:"fmt"`
	DateStr   string `json:"date_str"`
}

// isoLayouts are accepted for dt, most specific first.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (u *utilityHandlers) Time(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "time_operation"
	var in timeInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}

	var result any
	switch in.Operation {
	case "":
		return nil, toolerr.Missing(op, "operation")
	case "now":
		result = u.now().Format(time.RFC3339)
	case "today":
		result = u.now().Format(time.DateOnly)
	case "timestamp":
		result = float64(u.now().UnixNano()) / 1e9
	case "format":
		if in.DT == "" {
			return nil, toolerr.Missing(op, "dt")
		}
		if in.Fmt == "" {
			return nil, toolerr.Missing(op, "fmt")
		}
		t, ok := parseISO(in.DT)
		if !ok {
			return nil, toolerr.Invalid(op, "dt", fmt.Sprintf("cannot parse %q as an ISO 8601 date-time", in.DT))
		}
		result = strftime.Format(in.Fmt, t)
	case "parse":
		if in.DateStr == "" {
			return nil, toolerr.Missing(op, "date_str")
		}
		if in.Fmt == "" {
			return nil, toolerr.Missing(op, "fmt")
		}
		t, err := strftime.Parse(in.Fmt, in.DateStr)
		if err != nil {
			return nil, &toolerr.Error{Kind: toolerr.KindDomain, Op: op, Field: "date_str", Message: err.Error(), Err: err}
		}
		result = t.Format(time.RFC3339)
	default:
		return nil, toolerr.Invalid(op, "operation", fmt.Sprintf("unsupported operation: %s", in.Operation))
	}
	return encode(map[string]any{"result": result})
}

type waitInput struct {
	Seconds *float64 `json:"seconds"`
	Mode    string   `json:"mode"`
}

// Wait sleeps for the requested duration. Blocking mode sleeps the handler
// goroutine outright; async mode waits on a timer and returns early when the
// call is cancelled.
func (u *utilityHandlers) Wait(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "wait_operation"
	var in waitInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Seconds == nil {
		return nil, toolerr.Missing(op, "seconds")
	}
	secs := *in.Seconds
	if secs < 0 || math.IsNaN(secs) {
		return nil, toolerr.Invalid(op, "seconds", "seconds must not be negative")
	}
	if secs > u.maxWait.Seconds() {
		return nil, toolerr.Invalid(op, "seconds", fmt.Sprintf("seconds must be at most %s", u.maxWait))
	}
	d := time.Duration(secs * float64(time.Second))
	if in.Mode == "" {
		in.Mode = "blocking"
	}

	switch in.Mode {
	case "blocking":
		u.sleep(d)
	case "async":
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, toolerr.From(op, ctx.Err())
		}
	default:
		return nil, toolerr.Invalid(op, "mode", "mode must be 'blocking' or 'async'")
	}

	msg := fmt.Sprintf("Waited %s seconds (%s).", strconv.FormatFloat(secs, 'f', -1, 64), in.Mode)
	return encode(map[string]string{"message": msg})
}

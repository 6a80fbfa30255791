package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gameqc/logger"
)

// Config holds the budgets and policy thresholds of an automated QA run.
type Config struct {
	InitReadyBudget    time.Duration
	QuitCompleteBudget time.Duration
	AssetLoadTimeout   time.Duration
	ResultTimeout      time.Duration
	OverallTimeout     time.Duration
	MinAccuracy        float64
	MinCompletion      float64
}

func DefaultConfig() Config {
	return Config{
		InitReadyBudget:    10 * time.Second,
		QuitCompleteBudget: 5 * time.Second,
		AssetLoadTimeout:   8 * time.Second,
		ResultTimeout:      30 * time.Second,
		OverallTimeout:     2 * time.Minute,
	}
}

// LaunchContext identifies one test session of one game version.
type LaunchContext struct {
	GameID    string
	VersionID string
	UserID    string
	SessionID string
	EntryURL  string
	Timestamp time.Time
}

func (lc LaunchContext) scope() Scope {
	return Scope{GameID: lc.GameID, VersionID: lc.VersionID, SessionID: lc.SessionID}
}

// Recorder persists a result attempt. It must be idempotent per attempt ID
// and acknowledge only once the record is readable.
type Recorder interface {
	RecordAttempt(ctx context.Context, scope Scope, attempt Attempt) error
}

// Orchestrator runs the four automated checks against a launched game.
// Runs share no mutable state and may execute concurrently.
type Orchestrator struct {
	bridge   Bridge
	recorder Recorder
	checker  *IdempotencyChecker
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

func NewOrchestrator(bridge Bridge, recorder Recorder, checker *IdempotencyChecker, cfg Config, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		bridge:   bridge,
		recorder: recorder,
		checker:  checker,
		cfg:      cfg,
		log:      log.With("component", "qa.Orchestrator"),
		now:      time.Now,
	}
}

// Run executes QA-01..QA-04 sequentially and always returns a fully
// populated TestResults, even when the runtime fails or the run is aborted.
func (o *Orchestrator) Run(ctx context.Context, lc LaunchContext) TestResults {
	if o.cfg.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.OverallTimeout)
		defer cancel()
	}

	started := o.now()
	res := TestResults{
		SessionID: lc.SessionID,
		StartedAt: started,
		QA01:      HandshakeResult{Events: []Event{}},
		QA02:      missingFormatResult(),
	}

	h, err := o.bridge.Launch(ctx, lc.EntryURL)
	if err != nil {
		o.failAll(&res, fmt.Sprintf("launch failed: %v", err))
		o.finish(&res, started, time.Time{})
		return res
	}
	defer func() {
		if err := o.bridge.Close(h); err != nil {
			o.log.Warn("close runtime session", "session_id", lc.SessionID, "error", err)
		}
	}()

	// QA-01 first half: INIT -> READY.
	initAt := o.now()
	ready, readyOK := o.handshake(ctx, h, CommandInit, EventReady, o.cfg.InitReadyBudget, &res.QA01)
	res.QA01.InitToReadyMs = millis(o.now().Sub(initAt))

	// QA-02: the game's self-reported result.
	var attempts []Attempt
	if reason := abortReason(ctx); reason != "" {
		res.QA02.Error = reason
	} else if ev, err := o.bridge.AwaitEvent(ctx, h, EventResult, o.cfg.ResultTimeout); err != nil {
		res.QA02.Error = describeWait(EventResult, err)
	} else {
		res.QA01.Events = append(res.QA01.Events, ev)
		attempts = append(attempts, attemptFrom(ev))
		res.QA02 = o.evaluateFormat(ev.Data)
	}

	// QA-03: asset readiness. Manual criteria are left for the reviewer.
	res.QA03.Auto = o.evaluateAssets(ready, readyOK, res.QA01.InitToReadyMs)

	// QA-01 second half: QUIT -> COMPLETE.
	quitAt := o.now()
	var completeAt time.Time
	_, completeOK := o.handshake(ctx, h, CommandQuit, EventComplete, o.cfg.QuitCompleteBudget, &res.QA01)
	res.QA01.QuitToCompleteMs = millis(o.now().Sub(quitAt))
	if completeOK {
		completeAt = o.now()
	}
	attempts = append(attempts, o.drainResults(ctx, h, &res.QA01)...)

	runtimeErrors := o.bridge.Errors(h)
	res.QA01.Events = append(res.QA01.Events, runtimeErrors...)
	res.QA01.Pass = readyOK && completeOK &&
		res.QA01.InitToReadyMs <= millis(o.cfg.InitReadyBudget) &&
		res.QA01.QuitToCompleteMs <= millis(o.cfg.QuitCompleteBudget) &&
		len(runtimeErrors) == 0
	if res.QA01.Error == "" {
		switch {
		case len(runtimeErrors) > 0:
			res.QA01.Error = fmt.Sprintf("runtime reported %d error(s)", len(runtimeErrors))
		case !res.QA01.Pass:
			res.QA01.Error = "handshake exceeded its time budget"
		}
	}

	// QA-04: persist every attempt before counting records.
	res.QA04 = o.evaluateIdempotency(ctx, lc, attempts)

	o.finish(&res, initAt, completeAt)
	o.log.Info("automated QA finished",
		"game_id", lc.GameID,
		"version_id", lc.VersionID,
		"session_id", lc.SessionID,
		"qa01", res.QA01.Pass,
		"qa02", res.QA02.Pass,
		"asset_error", res.QA03.Auto.AssetError,
		"qa04", res.QA04.Pass,
		"duration_ms", res.TestDuration,
	)
	return res
}

func (o *Orchestrator) handshake(ctx context.Context, h Handle, cmd Command, want EventType, budget time.Duration, out *HandshakeResult) (Event, bool) {
	if reason := abortReason(ctx); reason != "" {
		setOnce(&out.Error, reason)
		return Event{}, false
	}
	if err := o.bridge.SendCommand(ctx, h, cmd); err != nil {
		setOnce(&out.Error, fmt.Sprintf("send %s: %v", cmd, err))
		return Event{}, false
	}
	ev, err := o.bridge.AwaitEvent(ctx, h, want, budget)
	if err != nil {
		setOnce(&out.Error, describeWait(want, err))
		return Event{}, false
	}
	out.Events = append(out.Events, ev)
	return ev, true
}

func (o *Orchestrator) drainResults(ctx context.Context, h Handle, out *HandshakeResult) []Attempt {
	var attempts []Attempt
	for ctx.Err() == nil {
		ev, err := o.bridge.AwaitEvent(ctx, h, EventResult, 0)
		if err != nil {
			break
		}
		out.Events = append(out.Events, ev)
		attempts = append(attempts, attemptFrom(ev))
	}
	return attempts
}

func (o *Orchestrator) evaluateFormat(raw json.RawMessage) FormatResult {
	norm := Normalize(raw)
	return FormatResult{
		Pass: norm.IsValid &&
			norm.Accuracy >= o.cfg.MinAccuracy &&
			norm.Completion >= o.cfg.MinCompletion,
		Accuracy:         norm.Accuracy,
		Completion:       norm.Completion,
		NormalizedResult: norm,
		ValidationErrors: norm.ValidationErrors,
	}
}

func (o *Orchestrator) evaluateAssets(ready Event, readyOK bool, initToReadyMs int64) AssetAuto {
	if !readyOK {
		return AssetAuto{AssetError: true, ReadyMs: initToReadyMs, Error: "game never reported ready"}
	}
	readyMs := initToReadyMs
	if reported, ok := reportedAssetsReadyMs(ready.Data); ok {
		readyMs = reported
	}
	return AssetAuto{
		AssetError: readyMs > millis(o.cfg.AssetLoadTimeout),
		ReadyMs:    readyMs,
	}
}

func (o *Orchestrator) evaluateIdempotency(ctx context.Context, lc LaunchContext, attempts []Attempt) IdempotencyResult {
	if reason := abortReason(ctx); reason != "" {
		return IdempotencyResult{DuplicateAttemptID: hasDuplicateIDs(attempts), Details: reason}
	}
	scope := lc.scope()
	if o.recorder != nil {
		for _, a := range attempts {
			if err := o.recorder.RecordAttempt(ctx, scope, a); err != nil {
				return IdempotencyResult{
					DuplicateAttemptID: hasDuplicateIDs(attempts),
					Details:            fmt.Sprintf("record attempt %q: %v", a.ID, err),
				}
			}
		}
	}
	if o.checker == nil {
		return IdempotencyResult{DuplicateAttemptID: hasDuplicateIDs(attempts), Details: "idempotency checker not configured"}
	}
	return o.checker.Check(ctx, scope, attempts)
}

func (o *Orchestrator) failAll(res *TestResults, reason string) {
	res.QA01.Error = reason
	res.QA02.Error = reason
	res.QA03.Auto = AssetAuto{AssetError: true, Error: reason}
	res.QA04 = IdempotencyResult{Details: reason}
}

func (o *Orchestrator) finish(res *TestResults, from, completeAt time.Time) {
	res.CompletedAt = o.now()
	end := completeAt
	if end.IsZero() {
		end = res.CompletedAt
	}
	if from.IsZero() {
		from = res.StartedAt
	}
	res.TestDuration = millis(end.Sub(from))
}

func missingFormatResult() FormatResult {
	norm := construct(nil)
	norm.ValidationErrors = []string{"no result reported"}
	return FormatResult{
		NormalizedResult: norm,
		ValidationErrors: norm.ValidationErrors,
	}
}

func attemptFrom(ev Event) Attempt {
	id := ev.AttemptID
	if id == "" {
		var body struct {
			AttemptID string `json:"attemptId"`
		}
		if json.Unmarshal(ev.Data, &body) == nil {
			id = body.AttemptID
		}
	}
	return Attempt{ID: id, Payload: ev.Data, ObservedAt: ev.ReceivedAt}
}

func reportedAssetsReadyMs(data json.RawMessage) (int64, bool) {
	var body struct {
		AssetsReadyMs *float64 `json:"assetsReadyMs"`
	}
	if len(data) == 0 || json.Unmarshal(data, &body) != nil || body.AssetsReadyMs == nil {
		return 0, false
	}
	if *body.AssetsReadyMs < 0 {
		return 0, false
	}
	return int64(*body.AssetsReadyMs), true
}

func abortReason(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("aborted: %v", err)
	}
	return ""
}

func describeWait(want EventType, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Sprintf("aborted while waiting for %s: %v", want, err)
	case errors.Is(err, ErrEventTimeout):
		return fmt.Sprintf("no %s event within budget", want)
	default:
		return fmt.Sprintf("waiting for %s: %v", want, err)
	}
}

func setOnce(dst *string, msg string) {
	if *dst == "" {
		*dst = msg
	}
}

func millis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

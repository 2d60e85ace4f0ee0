package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/proctor"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	ws "github.com/stemsi/exstem-portal/internal/websocket"
)

const (
	countdownInterval = time.Second
	// tickEvery throttles countdown events sent to the client.
	tickEvery     = 30 * time.Second
	submitTimeout = 15 * time.Second
)

// Fields of the per-attempt proctoring state hash.
const (
	stateViolations    = "violations"
	stateEyeViolations = "eye_violations"
	statePendingReason = "pending_reason"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ProctorHandler runs a student's proctored exam session over WebSocket.
// Each connection owns one proctor.Controller and executes its effects.
type ProctorHandler struct {
	rdb         *redis.Client
	exams       *service.ExamService
	submissions *service.SubmissionService
	violations  *service.ViolationService
	monitor     service.MonitorPublisher
	cfg         config.ProctorConfig
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(
	rdb *redis.Client,
	exams *service.ExamService,
	submissions *service.SubmissionService,
	violations *service.ViolationService,
	monitor service.MonitorPublisher,
	cfg config.ProctorConfig,
	allowedOrigins []string,
	log zerolog.Logger,
) *ProctorHandler {
	return &ProctorHandler{
		rdb:         rdb,
		exams:       exams,
		submissions: submissions,
		violations:  violations,
		monitor:     monitor,
		cfg:         cfg,
		log:         log.With().Str("component", "proctor_ws").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// ExamProctorStream godoc
// WS /ws/v1/exams/:exam_id/proctor?token=
// Upgrades to WebSocket and drives the proctoring state machine.
func (h *ProctorHandler) ExamProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	// Refuse before upgrading so the client gets a normal HTTP error.
	exam, err := h.exams.GetByID(c.Request.Context(), examID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}
	if !h.exams.Available(claims.Viewer(), exam) {
		response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
		return
	}
	submitted, err := h.submissions.HasSubmitted(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failFromErr(c, h.log, err)
		return
	}
	if submitted {
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	eid := examID.String()
	s := &proctorSession{
		h:          h,
		conn:       conn,
		ctrl:       proctor.NewController(proctor.NewConfig(h.cfg, exam)),
		exam:       exam,
		student:    service.Student{ID: claims.UserID, Label: claims.Label},
		answersKey: config.CacheKey.StudentAnswersKey(eid, claims.UserID),
		startKey:   config.CacheKey.StudentProctorStartKey(eid, claims.UserID),
		stateKey:   config.CacheKey.StudentProctorStateKey(eid, claims.UserID),
		liveKey:    config.CacheKey.ExamLiveStudentsKey(eid),
		keyTTL:     keyTTL(exam),
		log: h.log.With().
			Int("student_id", claims.UserID).
			Str("exam_id", eid).
			Logger(),
	}
	s.run()
}

func keyTTL(exam *model.Exam) time.Duration {
	if exam.DurationMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(exam.DurationMinutes)*time.Minute + time.Hour
}

// ─── Session ────────────────────────────────────────────────────────

type proctorSession struct {
	h       *ProctorHandler
	conn    *websocket.Conn
	ctrl    *proctor.Controller
	exam    *model.Exam
	student service.Student
	log     zerolog.Logger

	answersKey string
	startKey   string
	stateKey   string
	liveKey    string
	keyTTL     time.Duration

	startedAt time.Time
	lastTick  time.Time
	countdown *time.Ticker
	gaze      *time.Ticker
}

// run owns the connection until the session ends. A single goroutine reads
// from the socket; everything else, including every write, happens here.
func (s *proctorSession) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan ws.Request)
	go func() {
		defer close(msgs)
		for {
			var msg ws.Request
			if err := ws.ReadJSON(s.conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info().Msg("Student connected to proctored session")
	defer s.stopTimers()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				s.disconnected(ctx)
				return
			}
			if s.handle(ctx, msg) {
				return
			}

		case now := <-tickC(s.countdown):
			if s.apply(ctx, s.ctrl.TickCountdown(now)) {
				return
			}
			s.sendTick(now)

		case now := <-tickC(s.gaze):
			if s.apply(ctx, s.ctrl.TickGaze(now)) {
				return
			}
		}
	}
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// handle processes one client message and reports whether the session ended.
func (s *proctorSession) handle(ctx context.Context, msg ws.Request) bool {
	if msg.Action == ws.ActionPing {
		ws.WriteSignal(s.conn, ws.EventPong)
		return false
	}
	if msg.Action == ws.ActionStart {
		return s.start(ctx, msg)
	}
	if s.ctrl.State() == proctor.StateIdle {
		ws.WriteError(s.conn, "sesi belum dimulai")
		return false
	}

	now := time.Now()
	switch msg.Action {
	case ws.ActionAutosave:
		s.autosave(ctx, msg)
		return false
	case ws.ActionViolation:
		kind := model.ViolationKind(msg.ViolationType)
		if !knownViolation(kind) {
			ws.WriteError(s.conn, "jenis pelanggaran tidak dikenal")
			return false
		}
		return s.apply(ctx, s.ctrl.RecordViolation(kind, now, msg.Metadata))
	case ws.ActionGaze:
		// Stamped with server time so samples stay ordered.
		return s.apply(ctx, s.ctrl.ObserveGaze(proctor.GazeSample{
			FaceDetected: msg.FaceDetected,
			Horizontal:   msg.Horizontal,
			Vertical:     msg.Vertical,
			At:           now,
		}))
	case ws.ActionNote:
		if msg.Key != "" {
			s.ctrl.NoteMetadata(msg.Key, msg.Value)
		}
		return false
	case ws.ActionSubmit:
		return s.apply(ctx, s.ctrl.Submit())
	default:
		s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		ws.WriteError(s.conn, "aksi tidak dikenal: "+string(msg.Action))
		return false
	}
}

func knownViolation(k model.ViolationKind) bool {
	switch k {
	case model.ViolationTabHidden, model.ViolationWindowBlur, model.ViolationFullscreenExit,
		model.ViolationBlockedShortcut, model.ViolationRightClick, model.ViolationMouseLeave,
		model.ViolationGazeAway, model.ViolationNoFace:
		return true
	}
	return false
}

// start begins the attempt, resuming the original start time when the
// student reconnects.
func (s *proctorSession) start(ctx context.Context, msg ws.Request) bool {
	if s.ctrl.State() != proctor.StateIdle {
		ws.WriteError(s.conn, "sesi sudah dimulai")
		return false
	}

	now := time.Now()
	resumeFrom := s.resumeFrom(ctx, now)
	s.startedAt = now
	if !resumeFrom.IsZero() && resumeFrom.Before(now) {
		s.startedAt = resumeFrom
	}

	pipe := s.h.rdb.Pipeline()
	pipe.SAdd(ctx, s.liveKey, s.student.ID)
	pipe.Expire(ctx, s.liveKey, s.keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to mark student live")
	}

	s.restore(ctx)
	effects := s.ctrl.Start(now, proctor.Capabilities{
		Webcam:         msg.Webcam,
		Fullscreen:     msg.Fullscreen,
		VideoSessionID: msg.VideoSessionID,
	}, resumeFrom)

	s.countdown = time.NewTicker(countdownInterval)
	if msg.Webcam && s.h.cfg.GazePollInterval > 0 {
		s.gaze = time.NewTicker(s.h.cfg.GazePollInterval)
	}
	s.lastTick = now

	ws.WriteTyped(s.conn, ws.StartedResponse{
		Event:            ws.EventStarted,
		Resumed:          !resumeFrom.IsZero(),
		RemainingSeconds: ws.Seconds(s.ctrl.Remaining(now)),
	})
	s.publish(ctx, model.MonitorJoined, map[string]any{
		"resumed":    !resumeFrom.IsZero(),
		"webcam":     msg.Webcam,
		"fullscreen": msg.Fullscreen,
	})

	s.log.Info().Bool("resumed", !resumeFrom.IsZero()).Bool("webcam", msg.Webcam).Msg("Proctored session started")

	if s.apply(ctx, effects) {
		return true
	}
	// A resumed attempt may already be over time.
	return s.apply(ctx, s.ctrl.TickCountdown(now))
}

// restore carries the counters and any undelivered auto-submit of an
// earlier connection into the controller.
func (s *proctorSession) restore(ctx context.Context) {
	saved, err := s.h.rdb.HGetAll(ctx, s.stateKey).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read proctoring state")
		return
	}
	violations, eye, pending := parseProctorState(saved)
	if violations == 0 && eye == 0 && pending == model.AutoSubmitReasonNone {
		return
	}
	s.ctrl.Restore(violations, eye, pending)
	s.log.Info().
		Int("violations", violations).
		Int("eye_violations", eye).
		Str("pending", string(pending)).
		Msg("Proctoring state restored")
}

// saveState stores the counters, plus the reason of an auto-submit that is
// about to be delivered.
func (s *proctorSession) saveState(ctx context.Context, pending model.AutoSubmitReason) {
	pipe := s.h.rdb.Pipeline()
	pipe.HSet(ctx, s.stateKey, proctorStateFields(s.ctrl.Violations(), s.ctrl.EyeTrackingViolations(), pending))
	pipe.Expire(ctx, s.stateKey, s.keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to store proctoring state")
	}
}

func proctorStateFields(violations, eye int, pending model.AutoSubmitReason) map[string]any {
	return map[string]any{
		stateViolations:    violations,
		stateEyeViolations: eye,
		statePendingReason: string(pending),
	}
}

// parseProctorState reads the state hash. Missing or garbled fields count
// as zero, and unknown reasons are dropped.
func parseProctorState(saved map[string]string) (violations, eye int, pending model.AutoSubmitReason) {
	violations, _ = strconv.Atoi(saved[stateViolations])
	eye, _ = strconv.Atoi(saved[stateEyeViolations])
	switch r := model.AutoSubmitReason(saved[statePendingReason]); r {
	case model.AutoSubmitReasonViolationLimit, model.AutoSubmitReasonEyeTrackingLimit, model.AutoSubmitReasonTimeout:
		pending = r
	}
	return violations, eye, pending
}

// resumeFrom records the first start of this attempt and returns the
// earlier one when it already exists.
func (s *proctorSession) resumeFrom(ctx context.Context, now time.Time) time.Time {
	set, err := s.h.rdb.SetNX(ctx, s.startKey, now.UnixMilli(), s.keyTTL).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to record session start")
		return time.Time{}
	}
	if set {
		return time.Time{}
	}
	raw, err := s.h.rdb.Get(ctx, s.startKey).Result()
	if err != nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *proctorSession) autosave(ctx context.Context, msg ws.Request) {
	if !s.ctrl.Active() {
		ws.WriteError(s.conn, "jawaban tidak dapat diubah lagi")
		return
	}
	// Also keeps arbitrary strings out of the hash.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(s.conn, "format q_id tidak valid")
		return
	}

	entry := model.AnswerEntry{
		QuestionID:     msg.QID,
		SelectedOption: msg.SelectedOption,
		CanvasPayload:  msg.CanvasPayload,
	}
	if msg.CanvasPayload != "" {
		entry.AnswerType = string(model.AnswerKindCanvas)
	}
	data, _ := json.Marshal(entry)

	pipe := s.h.rdb.Pipeline()
	pipe.HSet(ctx, s.answersKey, msg.QID, data)
	pipe.Expire(ctx, s.answersKey, s.keyTTL)
	answered := pipe.HLen(ctx, s.answersKey)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Msg("Autosave Redis error")
		ws.WriteError(s.conn, "gagal menyimpan jawaban")
		return
	}

	ws.WriteTyped(s.conn, ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID})
	s.publish(ctx, model.MonitorAnswered, map[string]any{"answered_count": answered.Val()})
}

// apply executes controller effects in order and reports whether the
// session ended.
func (s *proctorSession) apply(ctx context.Context, effects []proctor.Effect) bool {
	for _, e := range effects {
		switch e.Kind {
		case proctor.EffectWarning:
			ws.WriteTyped(s.conn, ws.WarningResponse{
				Event:         ws.EventWarning,
				Message:       e.Message,
				ViolationType: e.Violation,
				Count:         e.Count,
				Limit:         e.Limit,
				EyeTracking:   e.EyeTracking,
				At:            e.At,
			})

		case proctor.EffectLogViolation:
			err := s.h.violations.Record(ctx, model.ViolationEvent{
				ExamID:       s.exam.ID,
				StudentID:    s.student.ID,
				Kind:         e.Violation,
				Timestamp:    e.At.UTC(),
				RunningCount: e.Count,
				Metadata:     e.Metadata,
			}, s.student.Label)
			if err != nil {
				s.log.Warn().Err(err).Str("violation", string(e.Violation)).Msg("Failed to queue violation")
			}
			s.saveState(ctx, model.AutoSubmitReasonNone)

		case proctor.EffectGazeChanged:
			ws.WriteTyped(s.conn, ws.GazeResponse{Event: ws.EventGaze, Direction: string(e.Direction)})
			s.publish(ctx, model.MonitorGaze, map[string]any{"direction": string(e.Direction)})

		case proctor.EffectStopTimers:
			s.stopTimers()
			ws.WriteSignal(s.conn, ws.EventTimersStopped)

		case proctor.EffectDisableInput:
			ws.WriteSignal(s.conn, ws.EventInputDisabled)

		case proctor.EffectLeaveVideo:
			ws.WriteSignal(s.conn, ws.EventLeaveVideo)

		case proctor.EffectSubmit:
			if e.Submit.IsAutoSubmit {
				s.saveState(ctx, e.Submit.Reason)
			}
			if !s.submit(e.Submit) {
				// Saved answers and state stay in Redis so a reconnect retries.
				return true
			}
			if e.Submit.IsAutoSubmit {
				return s.apply(ctx, s.ctrl.Complete())
			}

		case proctor.EffectTeardown:
			s.cleanup(ctx)
			return true
		}
	}
	return false
}

// submit delivers the attempt with whatever answers were autosaved.
func (s *proctorSession) submit(intent *proctor.SubmitIntent) bool {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	req := &model.SubmitExamRequest{
		Answers:          s.savedAnswers(ctx),
		TimeTakenSeconds: int(time.Since(s.startedAt).Seconds()),
		IsAutoSubmit:     intent.IsAutoSubmit,
		AutoSubmitReason: string(intent.Reason),
		Proctoring:       intent.Summary,
	}

	res, err := s.h.submissions.Submit(ctx, s.exam.ID.String(), s.student, req)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrAlreadySubmitted):
		// Another tab got there first; the attempt is over either way.
		s.log.Info().Msg("Attempt was already submitted")
	default:
		s.log.Error().Err(err).Bool("auto", intent.IsAutoSubmit).Msg("Submit failed")
		ws.WriteError(s.conn, "pengumpulan gagal, silakan sambungkan ulang")
		return false
	}

	ws.WriteTyped(s.conn, ws.SubmittedResponse{
		Event:            ws.EventSubmitted,
		IsAutoSubmit:     intent.IsAutoSubmit,
		AutoSubmitReason: intent.Reason,
		Result:           res,
	})
	s.log.Info().
		Bool("auto", intent.IsAutoSubmit).
		Str("reason", string(intent.Reason)).
		Int("violations", intent.Summary.ViolationCount).
		Int("eye_violations", intent.Summary.EyeTrackingViolationCount).
		Msg("Proctored attempt submitted")
	return true
}

func (s *proctorSession) savedAnswers(ctx context.Context) []model.AnswerEntry {
	saved, err := s.h.rdb.HGetAll(ctx, s.answersKey).Result()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read autosaved answers")
		return nil
	}
	entries := make([]model.AnswerEntry, 0, len(saved))
	for _, raw := range saved {
		var e model.AnswerEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func (s *proctorSession) sendTick(now time.Time) {
	if s.countdown == nil || now.Sub(s.lastTick) < tickEvery {
		return
	}
	s.lastTick = now
	ws.WriteTyped(s.conn, ws.TickResponse{
		Event:            ws.EventTick,
		RemainingSeconds: ws.Seconds(s.ctrl.Remaining(now)),
	})
}

func (s *proctorSession) stopTimers() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	if s.gaze != nil {
		s.gaze.Stop()
		s.gaze = nil
	}
}

// cleanup drops the attempt's transient state after a delivered submit.
func (s *proctorSession) cleanup(ctx context.Context) {
	pipe := s.h.rdb.Pipeline()
	pipe.Del(ctx, s.answersKey, s.startKey, s.stateKey)
	pipe.SRem(ctx, s.liveKey, s.student.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear session keys")
	}
	s.publish(ctx, model.MonitorLeft, map[string]any{"submitted": true})
}

// disconnected keeps answers, counters and the start time for a later resume.
func (s *proctorSession) disconnected(ctx context.Context) {
	if s.ctrl.State() == proctor.StateIdle {
		return
	}
	if err := s.h.rdb.SRem(ctx, s.liveKey, s.student.ID).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear live flag")
	}
	s.publish(ctx, model.MonitorLeft, map[string]any{"submitted": false})
	s.log.Info().Str("state", s.ctrl.State().String()).Msg("Student disconnected")
}

func (s *proctorSession) publish(ctx context.Context, t model.MonitorEventType, data map[string]any) {
	if s.h.monitor == nil {
		return
	}
	err := s.h.monitor.Publish(ctx, model.MonitorEvent{
		Type:      t,
		ExamID:    s.exam.ID.String(),
		StudentID: s.student.ID,
		Label:     s.student.Label,
		Data:      data,
		At:        time.Now().UTC(),
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("Monitor publish failed")
	}
}

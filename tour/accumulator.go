package tour

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
)

const implicitTokenPrefix = "session-"

// Options configure one import. They are read once, when the accumulator is
// created.
type Options struct {
	Markers            MarkerPolicy
	TourTypeMode       TourTypeMode
	TitleFromFileName  bool
	LogSensors         bool
	HeartRateTolerance time.Duration

	// FileName is the name of the imported file, used for titles.
	FileName string

	// Existing holds the duplicate keys of already imported tours. Nil means
	// nothing was imported before.
	Existing ExistingTours
	Pauses   PauseDetector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Accumulator routes the messages of one file into tour contexts and
// finalizes them. It is not safe for concurrent use; one Accumulator serves
// one file.
type Accumulator struct {
	opts Options
	log  *slog.Logger

	contexts  map[string]*TourContext
	order     []string
	finalized map[string]struct{}
	current   string

	// implicit session routing for messages without a Session token
	implicitN    int
	implicitDone bool

	imported KeySet
	results  []Result
	ended    bool
}

// New returns an Accumulator with defaults filled in for unset options.
func New(opts Options) *Accumulator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Existing == nil {
		opts.Existing = KeySet{}
	}
	if opts.Pauses == nil {
		opts.Pauses = TimerPauses{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TourTypeMode == "" {
		opts.TourTypeMode = DefaultTourTypeMode
	}
	if opts.HeartRateTolerance <= 0 {
		opts.HeartRateTolerance = DefaultHeartRateTolerance
	}
	return &Accumulator{
		opts:      opts,
		log:       opts.Logger,
		contexts:  make(map[string]*TourContext),
		finalized: make(map[string]struct{}),
		implicitN: 1,
		imported:  KeySet{},
	}
}

// Handle applies one decoded message. A returned error means the message was
// skipped; the accumulator stays usable.
func (a *Accumulator) Handle(m message.Message) error {
	if a.ended {
		return fmt.Errorf("%w: %s message after end of file", ErrContextFinalized, m.Kind)
	}
	if m.Kind == message.KindUnknown {
		return nil
	}

	c, err := a.route(m)
	if err != nil {
		return err
	}

	switch m.Kind {
	case message.KindRecord:
		return c.applyRecord(m)
	case message.KindLap:
		c.applyLap(m)
	case message.KindEvent:
		c.applyEvent(m)
	case message.KindLength:
		c.applyLength(m)
	case message.KindSession:
		c.applySession(m)
		if m.Session == "" {
			a.implicitDone = true
		}
	case message.KindSport:
		c.applySport(m)
	case message.KindDeviceInfo:
		c.applyDeviceInfo(m)
	case message.KindHeartRate:
		return c.applyHeartRate(m)
	default:
		return fmt.Errorf("%w: unhandled message kind %s", ErrProtocol, m.Kind)
	}
	return nil
}

func (a *Accumulator) route(m message.Message) (*TourContext, error) {
	token := m.Session
	if token == "" {
		if a.startsNextTour(m) {
			if _, err := a.FinalizeSession(a.implicitToken()); err != nil {
				return nil, err
			}
		}
		token = a.implicitToken()
	}
	if _, done := a.finalized[token]; done {
		return nil, fmt.Errorf("%w: %s message for session %q", ErrContextFinalized, m.Kind, token)
	}

	c, ok := a.contexts[token]
	if !ok {
		c = newTourContext(token)
		a.contexts[token] = c
		a.order = append(a.order, token)
	}
	if err := c.initializeIfNeeded(); err != nil {
		return nil, err
	}
	a.current = token
	return c, nil
}

// startsNextTour reports whether a tokenless message closes the implicit tour.
// Once the implicit tour has seen its session message, tour data that falls
// after the session window belongs to the next tour. Files that write the
// summary first are covered by the window; a second session message starting
// after the last committed record opens the next tour as well.
func (a *Accumulator) startsNextTour(m message.Message) bool {
	if !a.implicitDone {
		return false
	}
	c, ok := a.contexts[a.implicitToken()]
	if !ok {
		return false
	}
	if m.Kind == message.KindSession {
		start, ok := m.Time(message.SessionStartTime)
		last := c.previous()
		return ok && last != nil && start.After(last.Time)
	}
	if !opensTour(m.Kind) {
		return false
	}
	end := c.sessionEnd()
	t := messageTime(m)
	if end.IsZero() || t.IsZero() {
		return true
	}
	return t.After(end)
}

// messageTime returns the time a message describes, or the zero time.
func messageTime(m message.Message) time.Time {
	if m.HasTimestamp() {
		return m.Timestamp
	}
	if m.Kind == message.KindLength {
		if t, ok := m.Time(message.LengthStartTime); ok {
			return t
		}
	}
	return time.Time{}
}

// opensTour reports whether a message of kind k belongs to a new tour when it
// follows the session message of the implicit tour.
func opensTour(k message.Kind) bool {
	switch k {
	case message.KindRecord, message.KindLap, message.KindLength, message.KindEvent:
		return true
	default:
		return false
	}
}

func (a *Accumulator) implicitToken() string {
	return implicitTokenPrefix + strconv.Itoa(a.implicitN)
}

// Context returns the open context for token.
func (a *Accumulator) Context(token string) (*TourContext, bool) {
	c, ok := a.contexts[token]
	return c, ok
}

// Current returns the context the last message was routed to, if it is still
// open.
func (a *Accumulator) Current() (*TourContext, bool) {
	return a.Context(a.current)
}

// FinalizeSession closes the context for token and finalizes it. A context
// that never received tour data is discarded, and the result is nil.
func (a *Accumulator) FinalizeSession(token string) (*Result, error) {
	if _, done := a.finalized[token]; done {
		return nil, fmt.Errorf("%w: session %q", ErrContextFinalized, token)
	}
	c, ok := a.contexts[token]
	if !ok {
		return nil, fmt.Errorf("%w: no open session %q", ErrInvalidState, token)
	}
	if err := c.close(); err != nil {
		return nil, err
	}

	delete(a.contexts, token)
	for i, t := range a.order {
		if t == token {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.finalized[token] = struct{}{}
	if token == a.implicitToken() {
		a.implicitN++
		a.implicitDone = false
	}

	if c.empty() {
		a.log.Info("discarding session without tour data", "session", token)
		return nil, nil
	}
	res := a.finalize(c)
	a.results = append(a.results, *res)
	return res, nil
}

// End finalizes every open context in creation order and returns the results
// of the whole file. Messages handled after End are rejected.
func (a *Accumulator) End() ([]Result, error) {
	var errs []error
	for len(a.order) > 0 {
		if _, err := a.FinalizeSession(a.order[0]); err != nil {
			errs = append(errs, err)
			// FinalizeSession only fails before the context leaves order.
			a.order = a.order[1:]
		}
	}
	a.ended = true
	return a.results, errors.Join(errs...)
}

// Results returns the results finalized so far.
func (a *Accumulator) Results() []Result {
	return a.results
}

package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/jafarshop/checkoutapi/internal/domain"
	apperrors "github.com/jafarshop/checkoutapi/pkg/errors"
)

// DefaultSessionTTL is how long an idle checkout is kept
const DefaultSessionTTL = 2 * time.Hour

const (
	opCoupon  = "coupon"
	opPayment = "payment"
	opSubmit  = "submit"
	opRefresh = "refresh"
)

// checkoutSession is one buyer's checkout. mu guards every field below it.
type checkoutSession struct {
	id       string
	clientID uuid.UUID
	machine  *domain.StateMachine

	mu         sync.Mutex
	state      domain.CheckoutState
	lines      []domain.CartLine
	inFlight   string
	generation uint64
	intentSeq  int
	expiresAt  time.Time
}

// nextIntentKey names a new payment intent. Each intent the checkout asks
// for gets its own key so a cancelled one is never replayed.
func (c *checkoutSession) nextIntentKey() string {
	c.intentSeq++
	return fmt.Sprintf("%s-intent-%d", c.state.IdempotencyKey, c.intentSeq)
}

// begin claims the single network-mutation slot
func (c *checkoutSession) begin(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight != "" {
		return apperrors.New(apperrors.KindSubmissionInProgress, c.inFlight+" in progress")
	}
	c.inFlight = op
	return nil
}

func (c *checkoutSession) end() {
	c.mu.Lock()
	c.inFlight = ""
	c.mu.Unlock()
}

// completedCheckout remembers a submitted checkout so a retried submit
// returns the same order
type completedCheckout struct {
	clientID  uuid.UUID
	response  SubmitResponse
	expiresAt time.Time
}

type sessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*checkoutSession
	completed map[string]completedCheckout
	ttl       time.Duration
	now       func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionStore{
		sessions:  make(map[string]*checkoutSession),
		completed: make(map[string]completedCheckout),
		ttl:       ttl,
		now:       time.Now,
	}
}

func newSessionID() string {
	return ulid.Make().String()
}

func (s *sessionStore) add(sess *checkoutSession) {
	sess.expiresAt = s.now().Add(s.ttl)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

// get returns the live session owned by clientID and extends its lifetime
func (s *sessionStore) get(clientID uuid.UUID, id string) (*checkoutSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.clientID != clientID {
		return nil, &apperrors.ErrNotFound{Resource: "checkout", ID: id}
	}

	now := s.now()
	sess.mu.Lock()
	expired := now.After(sess.expiresAt) && sess.inFlight == ""
	if !expired {
		sess.expiresAt = now.Add(s.ttl)
	}
	sess.mu.Unlock()

	if expired {
		s.remove(id)
		return nil, &apperrors.ErrNotFound{Resource: "checkout", ID: id}
	}
	return sess, nil
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// complete replaces a live session with its submission result
func (s *sessionStore) complete(sess *checkoutSession, resp SubmitResponse) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.completed[sess.id] = completedCheckout{
		clientID:  sess.clientID,
		response:  resp,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
}

func (s *sessionStore) completedResult(clientID uuid.UUID, id string) (SubmitResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.completed[id]
	if !ok || c.clientID != clientID || s.now().After(c.expiresAt) {
		return SubmitResponse{}, false
	}
	return c.response, true
}

// sweep drops idle sessions past their expiry and returns how many went
func (s *sessionStore) sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := now.After(sess.expiresAt) && sess.inFlight == ""
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	for id, c := range s.completed {
		if now.After(c.expiresAt) {
			delete(s.completed, id)
		}
	}
	return removed
}

func (s *sessionStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

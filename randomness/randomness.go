// Package randomness is a single dealer commit-reveal deck. Card i is the
// point (i+1)·G; a shuffle permutes the points and masks each slot with a
// secret scalar, and a reveal unmasks one slot and maps it back to its value.
package randomness

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
)

var suite = suites.MustFind("Ed25519")

var (
	ErrUnknownHandle = errors.New("randomness: unknown handle")
	ErrHandleExists  = errors.New("randomness: handle already shuffled")
	ErrSlotRange     = errors.New("randomness: slot out of range")
	ErrCorruptSlot   = errors.New("randomness: slot does not unmask to a card")
)

type deck struct {
	options  []string
	masked   []kyber.Point
	secret   kyber.Scalar
	revealed map[int]string
	owners   map[int]string
}

type Service struct {
	mu     sync.Mutex
	stream cipher.Stream
	decks  map[int]*deck
}

type Option func(*Service)

// WithSeed makes shuffles reproducible.
func WithSeed(seed []byte) Option {
	return func(s *Service) {
		s.stream = suite.XOF(seed)
	}
}

func New(opts ...Option) *Service {
	s := &Service{
		stream: suite.RandomStream(),
		decks:  make(map[int]*deck),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cardPoint(i int) kyber.Point {
	return suite.Point().Mul(suite.Scalar().SetInt64(int64(i+1)), nil)
}

func (s *Service) permutation(n int) []int {
	var buf [8]byte
	s.stream.XORKeyStream(buf[:], buf[:])
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(buf[:])))).Perm(n)
}

// InitShuffle commits to a random order of options under handle.
func (s *Service) InitShuffle(handle int, options []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decks[handle]; exists {
		return fmt.Errorf("%w: %d", ErrHandleExists, handle)
	}
	d := &deck{
		options:  append([]string(nil), options...),
		masked:   make([]kyber.Point, len(options)),
		secret:   suite.Scalar().Pick(s.stream),
		revealed: make(map[int]string),
		owners:   make(map[int]string),
	}
	for slot, card := range s.permutation(len(options)) {
		d.masked[slot] = suite.Point().Mul(d.secret, cardPoint(card))
	}
	s.decks[handle] = d
	return nil
}

func (s *Service) deck(handle int) (*deck, error) {
	d, ok := s.decks[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	return d, nil
}

func (d *deck) unmask(slot int) (string, error) {
	if slot < 0 || slot >= len(d.masked) {
		return "", fmt.Errorf("%w: %d", ErrSlotRange, slot)
	}
	p := suite.Point().Mul(suite.Scalar().Inv(d.secret), d.masked[slot])
	for i := range d.options {
		if p.Equal(cardPoint(i)) {
			return d.options[i], nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrCorruptSlot, slot)
}

// Reveal opens slots publicly. Opening a slot twice is a no-op.
func (s *Service) Reveal(handle int, slots []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deck(handle)
	if err != nil {
		return err
	}
	opened := make(map[int]string, len(slots))
	for _, slot := range slots {
		if _, done := d.revealed[slot]; done {
			continue
		}
		v, err := d.unmask(slot)
		if err != nil {
			return err
		}
		opened[slot] = v
	}
	for slot, v := range opened {
		d.revealed[slot] = v
	}
	return nil
}

// Revealed returns a copy of every publicly opened slot.
func (s *Service) Revealed(handle int) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deck(handle)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(d.revealed))
	for slot, v := range d.revealed {
		out[slot] = v
	}
	return out, nil
}

// Assign records that addr may see the given slots.
func (s *Service) Assign(handle int, addr string, slots []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deck(handle)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot < 0 || slot >= len(d.masked) {
			return fmt.Errorf("%w: %d", ErrSlotRange, slot)
		}
	}
	for _, slot := range slots {
		d.owners[slot] = addr
	}
	return nil
}

// Owned returns the private view of addr: the values of the slots assigned
// to it, revealed or not.
func (s *Service) Owned(handle int, addr string) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deck(handle)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string)
	for slot, owner := range d.owners {
		if owner != addr {
			continue
		}
		v, err := d.unmask(slot)
		if err != nil {
			return nil, err
		}
		out[slot] = v
	}
	return out, nil
}

// Commitment is the published masked deck, one encoded point per slot.
func (s *Service) Commitment(handle int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.deck(handle)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(d.masked))
	for i, p := range d.masked {
		b, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Drop forgets a finished deck.
func (s *Service) Drop(handle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.decks, handle)
}

// Pool keeps one Service per room. Handles are only unique within a room.
type Pool struct {
	mu       sync.Mutex
	seed     []byte
	services map[string]*Service
}

// NewPool creates an empty pool. A non-nil seed makes every room's shuffles
// reproducible; each room derives its own stream from seed and its id.
func NewPool(seed []byte) *Pool {
	return &Pool{seed: seed, services: make(map[string]*Service)}
}

// For returns the service of roomID, creating it on first use.
func (p *Pool) For(roomID string) *Service {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.services[roomID]; ok {
		return s
	}
	var opts []Option
	if p.seed != nil {
		opts = append(opts, WithSeed(append(append([]byte(nil), p.seed...), roomID...)))
	}
	s := New(opts...)
	p.services[roomID] = s
	return s
}

func (p *Pool) Release(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.services, roomID)
}

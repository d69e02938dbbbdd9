package models

import (
	"errors"
	"fmt"
)

// Ошибки уровня тикера: цикл ловит, логирует и пропускает тикер,
// остальные обрабатываются дальше.
var (
	ErrDataUnavailable     = errors.New("data unavailable")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrSizingUnavailable   = errors.New("sizing unavailable")
)

// ErrStateCorruption — снапшот не прошёл проверку целостности.
// Фатально для автозапуска: стоп, последний валидный снапшот не трогаем.
var ErrStateCorruption = errors.New("state corruption")

// BrokerErrorKind — transient ретраим с backoff, permanent роняет только
// конкретный интент, леджер не трогается.
type BrokerErrorKind int

const (
	BrokerTransient BrokerErrorKind = iota
	BrokerPermanent
)

type BrokerError struct {
	Kind BrokerErrorKind
	Op   string
	Err  error
}

func (e *BrokerError) Error() string {
	kind := "transient"
	if e.Kind == BrokerPermanent {
		kind = "permanent"
	}
	return fmt.Sprintf("broker %s error in %s: %v", kind, e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

func NewBrokerTransient(op string, err error) *BrokerError {
	return &BrokerError{Kind: BrokerTransient, Op: op, Err: err}
}

func NewBrokerPermanent(op string, err error) *BrokerError {
	return &BrokerError{Kind: BrokerPermanent, Op: op, Err: err}
}

// IsBrokerTransient — можно ли ретраить.
func IsBrokerTransient(err error) bool {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind == BrokerTransient
	}
	return false
}

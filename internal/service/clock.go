package service

import "time"

// Clock abstracts wall-clock reads so window expiry is a pure function of
// (record, now) and can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func NewRealClock() Clock { return realClock{} }

package services

import "time"

// SystemClock : l'horloge réelle, en UTC. Les tests injectent la leur.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

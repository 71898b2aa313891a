package pairing

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly random 6-digit pairing code.
func GenerateCode() string {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		panic("pairing: crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// VerifyCode performs constant-time comparison of two codes.
func VerifyCode(provided, expected string) bool {
	// ConstantTimeCompare returns 0 for different lengths, which is correct.
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

type pendingCode struct {
	code      string
	expiresAt time.Time
}

// codeBook holds the outstanding temporary code per app. Issuing a new code
// for an app replaces the previous one.
type codeBook struct {
	mu    sync.Mutex
	codes map[string]pendingCode
}

func newCodeBook() *codeBook {
	return &codeBook{codes: make(map[string]pendingCode)}
}

func (b *codeBook) put(appID, code string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[appID] = pendingCode{code: code, expiresAt: expiresAt}
}

// take removes and reports the code for appID if it matches and has not
// expired. Check and removal happen under one lock, so a code is consumed
// at most once.
func (b *codeBook) take(appID, code string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pc, ok := b.codes[appID]
	if !ok {
		return false
	}
	if !now.Before(pc.expiresAt) {
		delete(b.codes, appID)
		return false
	}
	if !VerifyCode(code, pc.code) {
		return false
	}
	delete(b.codes, appID)
	return true
}

// sweep forgets expired codes.
func (b *codeBook) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for appID, pc := range b.codes {
		if !now.Before(pc.expiresAt) {
			delete(b.codes, appID)
		}
	}
}

func (b *codeBook) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.codes)
}

package chip

import (
	"fmt"
	"sync"

	"sensornode-go/errcode"
)

// A line handle exists at most once per process, whichever Chip value
// requested it.
var claims = struct {
	mu   sync.Mutex
	held map[claimKey]string
}{held: map[claimKey]string{}}

type claimKey struct {
	chip   string
	offset int
}

func claim(chip string, offset int, use string) error {
	claims.mu.Lock()
	defer claims.mu.Unlock()
	k := claimKey{chip, offset}
	if prev, ok := claims.held[k]; ok {
		return &errcode.E{C: errcode.PinInUse, Op: "claim", Msg: fmt.Sprintf("%s line %d already held as %s", chip, offset, prev)}
	}
	claims.held[k] = use
	return nil
}

func release(chip string, offset int) {
	claims.mu.Lock()
	delete(claims.held, claimKey{chip, offset})
	claims.mu.Unlock()
}

// Claimed reports whether offset on chip is held in this process.
func Claimed(chip string, offset int) bool {
	claims.mu.Lock()
	defer claims.mu.Unlock()
	_, ok := claims.held[claimKey{chip, offset}]
	return ok
}

package nlp

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
)

// Fingerprint is a SHA-256 digest of everything that defines the problem:
// dimensions, model, step, bounds, weights, initial state and reference.
// Identical inputs always give an identical fingerprint.
func (p *Problem) Fingerprint() string {
	h := sha256.New()
	writeInts(h, p.n, p.nx, p.nu)
	fmt.Fprintf(h, "%s|%T|", p.model.Name(), p.model.Integrator())
	writeFloats(h, p.model.Dt())
	writeFloats(h, p.lower...)
	writeFloats(h, p.upper...)
	writeFloats(h, p.w.Q...)
	writeFloats(h, p.w.Qf...)
	writeFloats(h, p.w.R...)
	writeFloats(h, p.w.S...)
	writeFloats(h, p.x0...)
	for _, r := range p.ref {
		writeFloats(h, r...)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeInts(h hash.Hash, vals ...int) {
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
}

func writeFloats(h hash.Hash, vals ...float64) {
	var buf [8]byte
	writeInts(h, len(vals))
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
}

package fhe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	paillier "github.com/roasbeef/go-go-gadget-paillier"
)

// paillierKey is the stored form of a Paillier key. The library keeps the
// private factors unexported, so the key is rebuilt from its primes.
type paillierKey struct {
	P *big.Int `cbor:"0,keyasint"`
	Q *big.Int `cbor:"1,keyasint"`
}

// generatePaillierPrimes draws the two primes of a new bits sized modulus.
func generatePaillierPrimes(bits int) (*paillierKey, error) {
	if bits < 64 || bits%16 != 0 {
		return nil, fmt.Errorf("invalid paillier key size: %d bits", bits)
	}
	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, err
		}
		q, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, err
		}
		if p.Cmp(q) != 0 {
			return &paillierKey{P: p, Q: q}, nil
		}
	}
}

// privateKey builds the library key for the stored primes.
func (k *paillierKey) privateKey() (*paillier.PrivateKey, error) {
	if k.P == nil || k.Q == nil || k.P.Cmp(k.Q) == 0 || k.P.BitLen() != k.Q.BitLen() {
		return nil, errors.New("invalid paillier primes")
	}
	bits := 2 * k.P.BitLen()
	key, err := paillier.GenerateKey(newPrimeReader(k.P, k.Q), bits)
	if err != nil {
		return nil, fmt.Errorf("cannot rebuild paillier key: %w", err)
	}
	if key.N.Cmp(new(big.Int).Mul(k.P, k.Q)) != 0 {
		return nil, errors.New("rebuilt paillier key does not match the stored primes")
	}
	return key, nil
}

// primeReader feeds paillier.GenerateKey with fixed primes. Every candidate
// read is answered with the next stored prime, shorter reads get zeros. The
// two primes may land on either factor, which yields the same key.
type primeReader struct {
	mu     sync.Mutex
	size   int
	primes [][]byte
}

func newPrimeReader(p, q *big.Int) *primeReader {
	size := (p.BitLen() + 7) / 8
	return &primeReader{
		size:   size,
		primes: [][]byte{p.FillBytes(make([]byte, size)), q.FillBytes(make([]byte, size))},
	}
}

func (r *primeReader) Read(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(b) != r.size {
		clear(b)
		return len(b), nil
	}
	if len(r.primes) == 0 {
		return 0, errors.New("paillier primes exhausted")
	}
	copy(b, r.primes[0])
	r.primes = r.primes[1:]
	return len(b), nil
}

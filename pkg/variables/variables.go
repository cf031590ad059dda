// Package variables generates and stores the values for a manifest's
// declared variables. Values are scoped to a (deployment, variable set)
// pair, so advancing the variable set generation produces fresh values
// without disturbing instances still bound to the old generation.
package variables

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-password/password"

	"github.com/flotilla-deploy/flotilla/pkg/manifest"
)

const (
	TypePassword    = "password"
	TypeCertificate = "certificate"
)

// Store holds generated values keyed by deployment, variable set id and
// variable name.
type Store interface {
	Put(deployment, setID, name string, value interface{}) error
	Get(deployment, setID, name string) (interface{}, bool)
}

type key struct {
	deployment string
	setID      string
	name       string
}

type inmemStore struct {
	mtx    sync.Mutex
	values map[key]interface{}
}

func NewInmemStore() Store {
	return &inmemStore{values: map[key]interface{}{}}
}

func (s *inmemStore) Put(deployment, setID, name string, value interface{}) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.values[key{deployment, setID, name}] = value
	return nil
}

func (s *inmemStore) Get(deployment, setID, name string) (interface{}, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.values[key{deployment, setID, name}]
	return v, ok
}

// Generator creates values for declared variables. Generation is
// idempotent within a variable set: a value that already exists is left
// alone, so re-deploys against the same generation see stable secrets.
type Generator struct {
	store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

func (g *Generator) Generate(declared []manifest.Variable, deployment, setID string) error {
	for _, v := range declared {
		if _, ok := g.store.Get(deployment, setID, v.Name); ok {
			continue
		}
		value, err := g.generateOne(v)
		if err != nil {
			return errors.Wrapf(err, "generating value for variable %q", v.Name)
		}
		if err := g.store.Put(deployment, setID, v.Name, value); err != nil {
			return errors.Wrapf(err, "storing value for variable %q", v.Name)
		}
	}
	return nil
}

func (g *Generator) generateOne(v manifest.Variable) (interface{}, error) {
	switch v.Type {
	case TypePassword:
		return password.Generate(20, 4, 0, false, true)
	case TypeCertificate:
		commonName, _ := v.Options["common_name"].(string)
		if commonName == "" {
			commonName = v.Name
		}
		return generateCertificate(commonName)
	default:
		return nil, errors.Errorf("unsupported variable type %q", v.Type)
	}
}

// Certificate is the generated value for a certificate-typed variable.
type Certificate struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"private_key"`
}

func generateCertificate(commonName string) (*Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})),
	}, nil
}

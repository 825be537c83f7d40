package deploy

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/jguan/chatstack/pkg/infra/logger"
)

const (
	certKeyBits  = 2048
	certValidFor = 10 * 365 * 24 * time.Hour

	// Both files are written world-readable on purpose: the proxy container
	// reads them as an arbitrary unprivileged user, and the pair is
	// self-signed material for a single host, not a secret worth guarding
	// at the cost of a broken proxy.
	certFileMode = 0o644
)

// Issuer creates the self-signed X.509 pair the advanced-mode proxy
// terminates TLS with.
type Issuer struct {
	// Dir is the certificate directory inside the stack directory.
	Dir string
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// NewIssuer creates an Issuer writing into dir.
func NewIssuer(dir string) *Issuer {
	return &Issuer{Dir: dir, Now: time.Now}
}

// CertPath returns the certificate file path.
func (i *Issuer) CertPath() string { return filepath.Join(i.Dir, CertFileName) }

// KeyPath returns the private key file path.
func (i *Issuer) KeyPath() string { return filepath.Join(i.Dir, KeyFileName) }

// Present reports whether both files of the pair exist.
func (i *Issuer) Present() bool {
	if _, err := os.Stat(i.CertPath()); err != nil {
		return false
	}
	if _, err := os.Stat(i.KeyPath()); err != nil {
		return false
	}
	return true
}

// CommonName reads the subject common name of the existing certificate.
func (i *Issuer) CommonName() (string, error) {
	data, err := os.ReadFile(i.CertPath())
	if err != nil {
		return "", err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return "", fmt.Errorf("no PEM block in %s", i.CertPath())
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse certificate: %w", err)
	}
	return cert.Subject.CommonName, nil
}

// Ensure issues the pair unless it already exists. force regenerates
// regardless, which is what a domain change requires. Returns whether a new
// pair was written.
func (i *Issuer) Ensure(domain string, params CertificateParams, force bool) (bool, error) {
	if !force && i.Present() {
		logger.Debug("certificate pair already present, keeping it", "dir", i.Dir)
		return false, nil
	}

	if err := i.issue(domain, params); err != nil {
		return false, err
	}
	return true, nil
}

func (i *Issuer) issue(domain string, params CertificateParams) error {
	params = params.withDefaults(domain)

	key, err := rsa.GenerateKey(rand.Reader, certKeyBits)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	now := i.Now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Country:            []string{params.Country},
			Province:           []string{params.State},
			Locality:           []string{params.City},
			Organization:       []string{params.Org},
			OrganizationalUnit: []string{params.OrgUnit},
			CommonName:         params.CommonName,
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	if ip := net.ParseIP(params.CommonName); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{params.CommonName}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return fmt.Errorf("create certificate dir: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.WriteFile(i.CertPath(), certPEM, certFileMode); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(i.KeyPath(), keyPEM, certFileMode); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	logger.Info("issued self-signed certificate", "cn", params.CommonName, "dir", i.Dir)
	return nil
}

package certificate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
)

// URLSigner mints and checks the signed verification URLs printed on
// certificates. The token binds the certificate id to its hash, so a link
// can only ever verify the artifact it was issued for.
type URLSigner struct {
	baseURL string
	key     []byte
	expiry  time.Duration
}

func NewURLSigner(baseURL string, key []byte, expiry time.Duration) *URLSigner {
	return &URLSigner{baseURL: baseURL, key: key, expiry: expiry}
}

type urlClaims struct {
	CertificateHash string `json:"certificate_hash"`
	jwt.RegisteredClaims
}

// VerificationURL returns the shareable verification link for cert.
func (s *URLSigner) VerificationURL(cert Certificate, now time.Time) (string, error) {
	claims := urlClaims{
		CertificateHash: cert.Hash,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cert.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "sign verification token", err)
	}
	return fmt.Sprintf("%s/v1/certificates/%s/verify?token=%s", s.baseURL, cert.ID, token), nil
}

// Parse validates a verification token and returns the certificate id and
// hash it was issued for.
func (s *URLSigner) Parse(tokenString string) (id.CertificateID, string, error) {
	var claims urlClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return id.CertificateID{}, "", dErrors.Wrap(dErrors.CodeInvalidInput, "invalid verification token", err)
	}
	certID, err := id.ParseCertificateID(claims.Subject)
	if err != nil {
		return id.CertificateID{}, "", err
	}
	return certID, claims.CertificateHash, nil
}

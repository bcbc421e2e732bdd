package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseDeviceToken(t *testing.T) {
	token, err := GenerateDeviceToken("TempSensor", "constraineddevice001", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateDeviceToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "TempSensor" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.LocationID != "constraineddevice001" {
		t.Errorf("LocationID = %q", claims.LocationID)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateDeviceToken_DefaultTTL(t *testing.T) {
	token, err := GenerateDeviceToken("dev", "", testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateDeviceToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != DefaultTokenTTL {
		t.Errorf("TTL = %v, want %v", ttl, DefaultTokenTTL)
	}
}

func TestGenerateDeviceToken_NoSecret(t *testing.T) {
	if _, err := GenerateDeviceToken("dev", "", "", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("error = %v, want ErrNoSecret", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateDeviceToken("dev", "", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	sign := func(method jwt.SigningMethod, claims jwt.Claims, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(jwt.SigningMethodHS256, DeviceClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "dev", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, []byte("other-secret"))},
		{"expired", sign(jwt.SigningMethodHS256, DeviceClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "dev", ExpiresAt: jwt.NewNumericDate(past),
		}}, []byte(testSecret))},
		{"no expiry", sign(jwt.SigningMethodHS256, DeviceClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "dev",
		}}, []byte(testSecret))},
		{"no subject", sign(jwt.SigningMethodHS256, DeviceClaims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, []byte(testSecret))},
		{"other algorithm", sign(jwt.SigningMethodHS512, DeviceClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "dev", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, []byte(testSecret))},
		{"garbage", "not.a.token"},
		{"truncated", valid[:len(valid)-4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

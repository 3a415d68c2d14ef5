package auth

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/docflow/internal/docapi"
)

func TestGetAccessTokenFromEnv(t *testing.T) {
	const testToken = "test-token-12345"
	t.Setenv(EnvToken, testToken)

	token, err := GetAccessToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != testToken {
		t.Errorf("expected token %q, got %q", testToken, token)
	}
}

func TestGetAccessTokenNoSource(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv("HOME", t.TempDir())

	_, err := GetAccessToken()
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestGetCredentialPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := getCredentialPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := filepath.Join(home, ".docflow", "credentials.gpg")
	if path != expected {
		t.Errorf("expected path %q, got %q", expected, path)
	}
}

func TestGetFromGPGFileNotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := getFromGPG(); err == nil {
		t.Error("expected error when credentials file does not exist")
	}
}

// fakeSSM returns a fixed parameter value and counts calls.
type fakeSSM struct {
	value string
	err   error
	calls int
	name  string
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.name = aws.ToString(in.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

func TestResolver_FallsBackToSSM(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv("HOME", t.TempDir())

	fake := &fakeSSM{value: "ssm-token"}
	r := NewResolver("/docflow/prod/token").WithParameterReader(fake)

	for i := 0; i < 2; i++ {
		token, err := r.AccessToken()
		if err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
		if token != "ssm-token" {
			t.Errorf("token = %q, want ssm-token", token)
		}
	}
	if fake.calls != 1 {
		t.Errorf("SSM calls = %d, want 1 (cached)", fake.calls)
	}
	if fake.name != "/docflow/prod/token" {
		t.Errorf("parameter = %q", fake.name)
	}
	if r.Source() != "ssm" {
		t.Errorf("Source() = %q, want ssm", r.Source())
	}

	r.Invalidate()
	if r.Source() != "" {
		t.Error("Invalidate should clear the source")
	}
	r.AccessToken()
	if fake.calls != 2 {
		t.Errorf("SSM calls after Invalidate = %d, want 2", fake.calls)
	}
}

func TestResolver_EnvWins(t *testing.T) {
	t.Setenv(EnvToken, "env-token")

	fake := &fakeSSM{value: "ssm-token"}
	r := NewResolver("/docflow/prod/token").WithParameterReader(fake)

	token, err := r.AccessToken()
	if err != nil || token != "env-token" {
		t.Fatalf("AccessToken() = %q, %v", token, err)
	}
	if fake.calls != 0 {
		t.Errorf("SSM should not be consulted, got %d calls", fake.calls)
	}
}

func TestResolver_NoSSMConfigured(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv("HOME", t.TempDir())

	_, err := NewResolver("").AccessToken()
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestResolver_SSMError(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv("HOME", t.TempDir())

	r := NewResolver("/docflow/prod/token").WithParameterReader(&fakeSSM{err: errors.New("AccessDenied")})
	if _, err := r.AccessToken(); !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

type fakeOverview struct{ err error }

func (f fakeOverview) Overview(ctx context.Context, token string) (*docapi.OverviewStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &docapi.OverviewStats{TotalDocuments: 3}, nil
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		err      error
		wantType ValidationErrorType
		wantOK   bool
	}{
		{name: "valid", token: "t", wantOK: true},
		{name: "empty token", token: "", wantType: ErrTypeNoToken},
		{name: "unauthorized", token: "t", err: &docapi.APIError{StatusCode: http.StatusUnauthorized}, wantType: ErrTypeInvalidToken},
		{name: "forbidden", token: "t", err: &docapi.APIError{StatusCode: http.StatusForbidden}, wantType: ErrTypeInvalidToken},
		{name: "bad gateway", token: "t", err: &docapi.APIError{StatusCode: http.StatusBadGateway}, wantType: ErrTypeNetworkError},
		{name: "dial error", token: "t", err: errors.New("dial tcp 127.0.0.1:1: connection refused"), wantType: ErrTypeNetworkError},
		{name: "other", token: "t", err: errors.New("boom"), wantType: ErrTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(context.Background(), fakeOverview{err: tt.err}, tt.token)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if valErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", valErr.Type, tt.wantType)
			}
		})
	}
}

package llm

import (
	"strings"
	"testing"
)

func TestAPIKeyCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   APIKeyCredentials
		wantErr bool
	}{
		{
			name:    "valid key",
			creds:   APIKeyCredentials{APIKey: "sk-ant-api03-xxxx"},
			wantErr: false,
		},
		{
			name:    "valid key with base URL",
			creds:   APIKeyCredentials{APIKey: "sk-test", BaseURL: "https://gateway.example.com/v1"},
			wantErr: false,
		},
		{
			name:    "missing key",
			creds:   APIKeyCredentials{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIKeyCredentials_Redacted(t *testing.T) {
	creds := APIKeyCredentials{APIKey: "sk-ant-api03-abcdefgh"}

	redacted := creds.Redacted()
	if strings.Contains(redacted, "api03") {
		t.Errorf("redacted output leaked key material: %s", redacted)
	}
	if !strings.HasPrefix(redacted, "APIKey: sk-a") {
		t.Errorf("expected first 4 characters preserved, got: %s", redacted)
	}
	if !strings.HasSuffix(redacted, "efgh") {
		t.Errorf("expected last 4 characters preserved, got: %s", redacted)
	}
}

func TestAPIKeyCredentials_RedactedIncludesBaseURL(t *testing.T) {
	creds := APIKeyCredentials{
		APIKey:  "sk-test-1234567890",
		BaseURL: "https://gateway.example.com/v1",
	}

	redacted := creds.Redacted()
	if !strings.Contains(redacted, "https://gateway.example.com/v1") {
		t.Errorf("expected BaseURL in redacted output, got: %s", redacted)
	}
}

func TestAWSCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   AWSCredentials
		wantErr bool
	}{
		{
			name:    "valid region",
			creds:   AWSCredentials{Region: "us-east-1"},
			wantErr: false,
		},
		{
			name:    "region and profile",
			creds:   AWSCredentials{Region: "eu-west-1", Profile: "staging"},
			wantErr: false,
		},
		{
			name:    "missing region",
			creds:   AWSCredentials{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAWSCredentials_Redacted(t *testing.T) {
	creds := AWSCredentials{Region: "us-east-1", Profile: "staging"}

	redacted := creds.Redacted()
	if !strings.Contains(redacted, "us-east-1") {
		t.Errorf("expected region in redacted output, got: %s", redacted)
	}
	if !strings.Contains(redacted, "staging") {
		t.Errorf("expected profile in redacted output, got: %s", redacted)
	}
}

func TestProviderType(t *testing.T) {
	if got := (APIKeyCredentials{}).ProviderType(); got != "api" {
		t.Errorf("APIKeyCredentials.ProviderType() = %q, want %q", got, "api")
	}
	if got := (AWSCredentials{}).ProviderType(); got != "aws" {
		t.Errorf("AWSCredentials.ProviderType() = %q, want %q", got, "aws")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{
			name:   "empty",
			secret: "",
			want:   "",
		},
		{
			name:   "short secret fully masked",
			secret: "abcd1234",
			want:   "********",
		},
		{
			name:   "long secret keeps edges",
			secret: "sk-ant-api03-secret",
			want:   "sk-a***********cret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskSecret(tt.secret)
			if got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

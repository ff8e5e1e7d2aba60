package repo

import "testing"

const monorepo = "https://github.com/dfinity/ic"

func TestNormalize(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef01234567"
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/dfinity/ic", monorepo},
		{"https://github.com/dfinity/ic/", monorepo},
		{"https://github.com/dfinity/ic.git", monorepo},
		{"https://github.com/dfinity/ic.git/", monorepo},
		{"https://github.com/dfinity/ic/tree/" + hash, monorepo},
		{"https://github.com/dfinity/ic/commit/" + hash, monorepo},
		{"https://github.com/dfinity/ic/commit/" + hash + "/", monorepo},
		{"https://github.com/dfinity/ic.git/tree/" + hash, monorepo},
		{"  https://github.com/dfinity/ic  ", monorepo},
		{"https://github.com/dfinity/internet-identity", "https://github.com/dfinity/internet-identity"},
		{"https://github.com/dfinity/gitops", "https://github.com/dfinity/gitops"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(got); again != got {
				t.Errorf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want Profile
	}{
		{"https://github.com/dfinity/ic", ProfileLargeMonorepo},
		{"https://github.com/dfinity/ic.git", ProfileLargeMonorepo},
		{"https://github.com/dfinity/ic/tree/abc", ProfileLargeMonorepo},
		{"https://github.com/dfinity/ic-js", ProfileStandalone},
		{"https://github.com/dfinity/icp-ledger", ProfileStandalone},
		{"https://github.com/dfinity/internet-identity", ProfileStandalone},
		{"http://github.com/dfinity/ic", ProfileStandalone},
		{"https://github.com/DFINITY/ic", ProfileStandalone},
		{"https://github.com/other/ic", ProfileStandalone},
		{"", ProfileStandalone},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Classify(tt.url, monorepo); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

package termlog

import (
	"context"
	"testing"
)

func TestLevelForVerbosity(t *testing.T) {
	cases := []struct {
		v    int
		want string
	}{
		{0, "WARN"},
		{1, "INFO"},
		{2, "DEBUG"},
		{5, "DEBUG"},
	}
	for _, tc := range cases {
		if got := levelForVerbosity(tc.v).String(); got != tc.want {
			t.Errorf("levelForVerbosity(%d) = %s, want %s", tc.v, got, tc.want)
		}
	}
}

func TestFromContextReturnsDefaultWhenUnset(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext returned nil")
	}
}

func TestWithContextRoundTrips(t *testing.T) {
	want := New(1)
	ctx := WithContext(context.Background(), want)
	if got := FromContext(ctx); got != want {
		t.Error("FromContext did not return the Logger stored by WithContext")
	}
}

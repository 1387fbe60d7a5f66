package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/vitae-cloud/profilex/internal/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		permanent bool
	}{
		{http.StatusOK, false, false},
		{http.StatusTooManyRequests, true, false},
		{http.StatusInternalServerError, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusUnauthorized, false, true},
		{http.StatusForbidden, false, true},
		{http.StatusNotFound, false, true},
	}

	for _, tc := range cases {
		err := ClassifyStatus(tc.status)
		if !tc.transient && !tc.permanent {
			if err != nil {
				t.Errorf("status %d: expected nil, got %v", tc.status, err)
			}
			continue
		}
		if domain.IsTransient(err) != tc.transient {
			t.Errorf("status %d: transient=%v, want %v", tc.status, domain.IsTransient(err), tc.transient)
		}
		if domain.IsPermanent(err) != tc.permanent {
			t.Errorf("status %d: permanent=%v, want %v", tc.status, domain.IsPermanent(err), tc.permanent)
		}
	}
}

func TestClassifyErr_NetworkIsTransient(t *testing.T) {
	err := ClassifyErr(fmt.Errorf("get profile: %w", timeoutErr{}))
	if !domain.IsTransient(err) {
		t.Errorf("expected transient, got %v", err)
	}
}

func TestClassifyErr_DeadlineIsTransient(t *testing.T) {
	err := ClassifyErr(fmt.Errorf("get profile: %w", context.DeadlineExceeded))
	if !domain.IsTransient(err) {
		t.Errorf("expected transient, got %v", err)
	}
}

func TestClassifyErr_OtherIsPermanent(t *testing.T) {
	err := ClassifyErr(errors.New("malformed payload"))
	if !domain.IsPermanent(err) {
		t.Errorf("expected permanent, got %v", err)
	}
}

func TestClassifyErr_Nil(t *testing.T) {
	if err := ClassifyErr(nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

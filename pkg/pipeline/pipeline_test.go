// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipeline

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

func TestTokenStopOnce(t *testing.T) {
	token := NewToken("test")

	var order []string
	token.OnStop("first", func() error {
		order = append(order, "first")
		return nil
	})
	token.OnStop("second", func() error {
		order = append(order, "second")
		return errors.New("ignored")
	})

	if token.Stopped() {
		t.Fatal("Token is stopped before Stop")
	}

	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		go func() {
			defer wg.Done()
			token.Stop()
		}()
	}
	wg.Wait()

	if !token.Stopped() {
		t.Fatal("Token is not stopped")
	}

	select {
	case <-token.Done():
	default:
		t.Fatal("Done channel is not closed")
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("Closers were called as %v", order)
	}
}

func TestTokenOnStopAfterStop(t *testing.T) {
	token := NewToken("test")
	token.Stop()

	called := false
	token.OnStop("late", func() error {
		called = true
		return nil
	})

	if !called {
		t.Fatal("Closer registered after Stop was not called")
	}
}

func TestGroupCascadesFailure(t *testing.T) {
	token := NewToken("test")
	group := NewGroup(token)

	failure := errors.New("peer is gone")

	group.Go("blocked", func(token *Token) error {
		select {
		case <-token.Done():
			return nil
		case <-time.After(time.Second):
			return errors.New("was not stopped")
		}
	})

	group.Go("failing", func(_ *Token) error {
		return failure
	})

	err := group.Wait()
	if err == nil {
		t.Fatal("Group did not report the failure")
	}

	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("Error is %T, not a *multierror.Error", err)
	}
	if len(merr.Errors) != 1 {
		t.Fatalf("Expected one error, got %v", merr.Errors)
	}
	if !errors.Is(merr.Errors[0], failure) || !strings.HasPrefix(merr.Errors[0].Error(), "failing: ") {
		t.Fatalf("Unexpected error %v", merr.Errors[0])
	}

	if !token.Stopped() {
		t.Fatal("Token was not stopped")
	}

	if err2 := group.Wait(); err2 != err {
		t.Fatalf("Second Wait returned %v", err2)
	}
}

func TestGroupRecoversPanic(t *testing.T) {
	group := NewGroup(NewToken("test"))

	group.Go("panicking", func(_ *Token) error {
		panic("boom")
	})

	if err := group.Wait(); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Panic was not reported: %v", err)
	}
}

func TestGroupCleanShutdown(t *testing.T) {
	token := NewToken("test")
	group := NewGroup(token)

	for i := 0; i < 3; i++ {
		group.Go("worker", func(token *Token) error {
			<-token.Done()
			return nil
		})
	}

	token.Stop()

	if err := group.Wait(); err != nil {
		t.Fatal(err)
	}
}

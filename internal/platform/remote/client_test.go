package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snailscoop/modauthority/internal/platform"
)

func TestAdminStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/communities/chat-1/admins/admin-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("auth header = %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"admin": true})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	admin, err := c.AdminStatus(context.Background(), "chat-1", "admin-1")
	if err != nil {
		t.Fatalf("admin status: %v", err)
	}
	if !admin {
		t.Error("expected admin")
	}
}

func TestBanMemberSendsUntil(t *testing.T) {
	until := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["until"] != until.Format(time.RFC3339) {
			t.Errorf("until = %s", body["until"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if err := c.BanMember(context.Background(), "chat-1", "user-7", &until); err != nil {
		t.Fatalf("ban: %v", err)
	}
}

func TestUserByUsername(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/by-username/snail" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "42", "username": "snail"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	u, err := c.UserByUsername(context.Background(), "snail")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.ID != "42" || u.Username != "snail" {
		t.Errorf("user = %+v", u)
	}
}

func TestUserByUsernameUnknownHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such user", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.UserByUsername(context.Background(), "ghost")
	if !errors.Is(err, platform.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestErrorIncludesGatewayBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "member not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.UnbanMember(context.Background(), "chat-1", "ghost")
	if err == nil {
		t.Fatal("expected an error")
	}
}

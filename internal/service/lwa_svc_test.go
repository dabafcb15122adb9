package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ==================== 测试辅助 ====================

// newLWATestServer 返回一个可编程的 token 端点
func newLWATestServer(handler http.HandlerFunc) (*httptest.Server, *LWAService) {
	srv := httptest.NewServer(handler)
	svc := NewLWAService(&LWAConfig{TokenURL: srv.URL})
	return srv, svc
}

// ==================== 单元测试 ====================

func TestLWA_ExchangeAuthCode(t *testing.T) {
	srv, svc := newLWATestServer(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostFormValue("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %s, want authorization_code", got)
		}
		if got := r.PostFormValue("code"); got != "ANxxOauthCode" {
			t.Errorf("code = %s, want ANxxOauthCode", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"Atza|access","refresh_token":"Atzr|refresh","token_type":"bearer","expires_in":3600}`))
	})
	defer srv.Close()

	result, err := svc.ExchangeAuthCode(context.Background(),
		"ANxxOauthCode", "https://example.com/callback", "client-id", "client-secret")
	if err != nil {
		t.Fatalf("换取 token 失败: %v", err)
	}
	if result.RefreshToken != "Atzr|refresh" {
		t.Errorf("refresh_token = %s, want Atzr|refresh", result.RefreshToken)
	}
	if result.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", result.ExpiresIn)
	}
}

func TestLWA_RefreshWithoutRotation(t *testing.T) {
	// 响应里没有 refresh_token 字段 -> 亚马逊未轮换
	srv, svc := newLWATestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"Atza|access","token_type":"bearer","expires_in":3600}`))
	})
	defer srv.Close()

	result, err := svc.Refresh(context.Background(), "Atzr|old", "client-id", "client-secret")
	if err != nil {
		t.Fatalf("刷新失败: %v", err)
	}
	if result.RefreshToken != "" {
		t.Errorf("未轮换时 refresh_token 应为空, got %s", result.RefreshToken)
	}
}

func TestLWA_InvalidGrant(t *testing.T) {
	srv, svc := newLWATestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"The request has an invalid grant parameter"}`))
	})
	defer srv.Close()

	_, err := svc.Refresh(context.Background(), "Atzr|dead", "client-id", "client-secret")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("invalid_grant 应映射为 ErrInvalidGrant, got %v", err)
	}
	if ErrorKind(err) != KindInvalidGrant {
		t.Errorf("kind = %s, want %s", ErrorKind(err), KindInvalidGrant)
	}
}

func TestLWA_ExchangeErrorPassthrough(t *testing.T) {
	srv, svc := newLWATestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"Client authentication failed"}`))
	})
	defer srv.Close()

	_, err := svc.ExchangeAuthCode(context.Background(), "code", "uri", "bad-id", "bad-secret")

	var ex *ExchangeError
	if !errors.As(err, &ex) {
		t.Fatalf("4xx 应返回 ExchangeError, got %v", err)
	}
	// 亚马逊返回的 code / description 原样透传
	if ex.Code != "invalid_client" {
		t.Errorf("code = %s, want invalid_client", ex.Code)
	}
	if ex.Description != "Client authentication failed" {
		t.Errorf("description = %s", ex.Description)
	}
	if ex.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", ex.StatusCode)
	}
}

func TestLWA_ServerErrorIsUpstream(t *testing.T) {
	srv, svc := newLWATestServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := svc.Refresh(context.Background(), "Atzr|token", "client-id", "client-secret")

	var up *UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("5xx 应返回 UpstreamError, got %v", err)
	}
	if ErrorKind(err) != KindUpstream {
		t.Errorf("kind = %s, want %s", ErrorKind(err), KindUpstream)
	}
}

func TestLWA_ClientCredentials(t *testing.T) {
	srv, svc := newLWATestServer(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostFormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %s, want client_credentials", got)
		}
		if got := r.PostFormValue("scope"); got != RotationScope {
			t.Errorf("scope = %s, want %s", got, RotationScope)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"Atza|app-level","token_type":"bearer","expires_in":3600}`))
	})
	defer srv.Close()

	token, err := svc.ClientCredentials(context.Background(), "client-id", "client-secret", RotationScope)
	if err != nil {
		t.Fatalf("client_credentials 失败: %v", err)
	}
	if token != "Atza|app-level" {
		t.Errorf("access_token = %s", token)
	}
}

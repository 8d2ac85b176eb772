package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"skovkrogen/internal/auth"
	"skovkrogen/internal/checklist"
	"skovkrogen/internal/interval"
	"skovkrogen/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rowJSON = `{"id":7,"start_date":"2024-07-10","end_date":"2024-07-14","guest_name":"Kurt",
"guest_email":"a@x.com","guest_count":2,"allow_other_family":false,"purpose":null,
"status":"confirmed","checkout_checklist":null,"created_at":"2024-07-01T10:00:00.123456+00:00"}`

func TestListBookings_HeadersAndDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/bookings", r.URL.Path)
		assert.Equal(t, "id.asc", r.URL.Query().Get("order"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		w.Write([]byte("[" + rowJSON + "]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", "", time.Second)
	rows, err := c.ListBookings(WithAccessToken(context.Background(), "user-token"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	b := rows[0]
	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, "2024-07-10", b.StartDate.String())
	assert.Nil(t, b.Purpose)
	assert.NotNil(t, b.Checklist)
	assert.Equal(t, 2024, b.CreatedAt.Year())
}

func TestListBookings_AnonFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	rows, err := NewClient(srv.URL, "anon", "", time.Second).ListBookings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertBooking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2024-07-10", body["start_date"])
		assert.Equal(t, "confirmed", body["status"])
		assert.Nil(t, body["purpose"])
		assert.Equal(t, map[string]any{}, body["checkout_checklist"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("[" + rowJSON + "]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", "bookings", time.Second)
	b, err := c.InsertBooking(context.Background(), models.NewBooking{
		StartDate:  interval.MustParse("2024-07-10"),
		EndDate:    interval.MustParse("2024-07-14"),
		GuestName:  "Kurt",
		GuestEmail: "a@x.com",
		GuestCount: 2,
		Status:     models.StatusConfirmed,
		Checklist:  checklist.Checklist{},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.ID)
}

func TestUpdateBooking_SendsOnlyPatchFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.7", r.URL.Query().Get("id"))
		data, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"checkout_checklist":{}}`, string(data))
		w.Write([]byte("[" + rowJSON + "]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", "", time.Second)
	require.NoError(t, c.UpdateBooking(context.Background(), 7, models.BookingPatch{Checklist: checklist.Checklist{}}))
}

func TestMutations_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", "", time.Second)
	name := "Beth"
	assert.ErrorIs(t, c.UpdateBooking(context.Background(), 9, models.BookingPatch{GuestName: &name}), models.ErrBookingNotFound)
	assert.ErrorIs(t, c.DeleteBooking(context.Background(), 9), models.ErrBookingNotFound)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"42501","message":"permission denied for table bookings"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "anon", "", time.Second).ListBookings(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "42501", apiErr.Code)
	assert.Contains(t, apiErr.Message, "permission denied")
}

func TestRedisCache_InvalidatedOnWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Write([]byte("[" + rowJSON + "]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", "", time.Second)
	c.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	_, err := c.ListBookings(ctx)
	require.NoError(t, err)
	rows, err := c.ListBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(1), gets.Load())

	require.NoError(t, c.DeleteBooking(ctx, 7))
	_, err = c.ListBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), gets.Load())
}

func TestRedisCache_PartitionedByToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		// Row level security: each user sees only their own row.
		if r.Header.Get("Authorization") == "Bearer token-a" {
			w.Write([]byte("[" + rowJSON + "]"))
			return
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", "", time.Second)
	c.UseRedisCache(rdb, time.Minute)
	ctxA := WithAccessToken(context.Background(), "token-a")
	ctxB := WithAccessToken(context.Background(), "token-b")

	rows, err := c.ListBookings(ctxA)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = c.ListBookings(ctxB)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = c.ListBookings(ctxA)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(2), gets.Load())
	assert.True(t, mr.Exists("skovkrogen:supabase:bookings"))
	assert.Positive(t, mr.TTL("skovkrogen:supabase:bookings"))
}

func TestAuth_SignInAndCurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
			w.Write([]byte(`{"access_token":"tok","refresh_token":"ref","expires_in":3600,"user":{"id":"u-1","email":"a@x.com"}}`))
		case "/auth/v1/user":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":"u-1","email":"a@x.com"}`))
		case "/auth/v1/recover":
			assert.Equal(t, "https://app/reset", r.URL.Query().Get("redirect_to"))
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewAuth(NewClient(srv.URL, "anon", "", time.Second), nil)
	ctx := context.Background()

	_, err := a.SignInWithPassword(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	s, err := a.SignInWithPassword(ctx, "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)
	assert.Equal(t, "a@x.com", s.User.Email)

	v, err := a.CurrentUser(ctx, "Bearer tok")
	require.NoError(t, err)
	assert.Equal(t, "u-1", v.ID)

	_, err = a.CurrentUser(ctx, "other")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = a.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	assert.NoError(t, a.ResetPasswordForEmail(ctx, "a@x.com", "https://app/reset"))
}

func TestAuth_LocalVerifier(t *testing.T) {
	verifier := auth.NewJWTVerifier("s3cret", "authenticated")
	token, err := verifier.Issue(models.Viewer{ID: "u-2", Email: "b@x.com"}, time.Hour)
	require.NoError(t, err)

	a := NewAuth(NewClient("http://127.0.0.1:0", "anon", "", time.Second), verifier)
	v, err := a.CurrentUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", v.Email)
}

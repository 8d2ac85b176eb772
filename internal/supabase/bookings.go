package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"skovkrogen/internal/models"
)

func (c *Client) tablePath() string {
	return "/rest/v1/" + url.PathEscape(c.table)
}

func (c *Client) rowPath(id int64) string {
	return fmt.Sprintf("%s?id=eq.%d", c.tablePath(), id)
}

// ListBookings fetches the whole table ordered by id.
func (c *Client) ListBookings(ctx context.Context) ([]models.Booking, error) {
	var rows []models.Booking
	if c.readCache(ctx, &rows) {
		return normalize(rows), nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.tablePath()+"?select=*&order=id.asc", nil)
	if err != nil {
		return nil, err
	}
	if err := c.do(req, &rows); err != nil {
		return nil, err
	}
	c.writeCache(ctx, rows)
	return normalize(rows), nil
}

func normalize(rows []models.Booking) []models.Booking {
	for i := range rows {
		rows[i].Normalize()
	}
	return rows
}

// InsertBooking creates a row and returns it as stored.
func (c *Client) InsertBooking(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.tablePath(), nb)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")

	var rows []models.Booking
	err = c.do(req, &rows)
	c.invalidateCache(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("supabase: insert returned no row")
	}
	b := rows[0]
	b.Normalize()
	return &b, nil
}

// UpdateBooking sends only the fields set in patch.
func (c *Client) UpdateBooking(ctx context.Context, id int64, patch models.BookingPatch) error {
	if patch.Empty() {
		return nil
	}
	body := map[string]json.RawMessage{}
	if patch.GuestName != nil {
		data, _ := json.Marshal(*patch.GuestName)
		body["guest_name"] = data
	}
	if patch.Checklist != nil {
		data, err := json.Marshal(patch.Checklist)
		if err != nil {
			return err
		}
		body["checkout_checklist"] = data
	}
	return c.mutateRow(ctx, http.MethodPatch, id, body)
}

// DeleteBooking hard-deletes a row.
func (c *Client) DeleteBooking(ctx context.Context, id int64) error {
	return c.mutateRow(ctx, http.MethodDelete, id, nil)
}

// mutateRow asks for the affected rows back so a missing id (or one hidden
// by row level security) is reported as not found.
func (c *Client) mutateRow(ctx context.Context, method string, id int64, body any) error {
	req, err := c.newRequest(ctx, method, c.rowPath(id), body)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=representation")

	var rows []json.RawMessage
	err = c.do(req, &rows)
	c.invalidateCache(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

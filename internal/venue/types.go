package venue

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// apiMarket is the venue's wire representation of a market. Numeric fields
// arrive as strings.
type apiMarket struct {
	ID           string    `json:"id"`
	Question     string    `json:"question"`
	Slug         string    `json:"slug"`
	Outcomes     []string  `json:"outcomes"`
	TokenIDs     []string  `json:"token_ids"`
	Volume       string    `json:"volume"`
	Active       bool      `json:"active"`
	Closed       bool      `json:"closed"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m *apiMarket) toDomain() domain.Market {
	out := domain.Market{
		ID:           m.ID,
		Question:     m.Question,
		Slug:         m.Slug,
		Status:       domain.MarketStatusActive,
		LastActiveAt: m.LastActiveAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	out.Volume, _ = strconv.ParseFloat(m.Volume, 64)
	if m.Closed {
		out.Status = domain.MarketStatusClosed
	} else if !m.Active {
		out.Status = domain.MarketStatusSettled
	}
	for i := 0; i < len(m.Outcomes) && i < 2; i++ {
		out.Outcomes[i] = m.Outcomes[i]
	}
	for i := 0; i < len(m.TokenIDs) && i < 2; i++ {
		out.TokenIDs[i] = m.TokenIDs[i]
	}
	return out
}

// apiBook holds one token's order book levels, best first.
type apiBook struct {
	Bids []apiLevel `json:"bids"`
	Asks []apiLevel `json:"asks"`
}

type apiLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (b *apiBook) toTokenQuote(tokenID string) domain.TokenQuote {
	tq := domain.TokenQuote{TokenID: tokenID}
	if len(b.Bids) > 0 {
		tq.BestBid, _ = strconv.ParseFloat(b.Bids[0].Price, 64)
		tq.BidDepth, _ = strconv.ParseFloat(b.Bids[0].Size, 64)
	}
	if len(b.Asks) > 0 {
		tq.BestAsk, _ = strconv.ParseFloat(b.Asks[0].Price, 64)
		tq.AskDepth, _ = strconv.ParseFloat(b.Asks[0].Size, 64)
	}
	return tq
}

// apiOrderResponse is shared by the submit and status endpoints.
type apiOrderResponse struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	FilledSize string `json:"filled_size"`
	AvgPrice   string `json:"avg_price"`
	ErrorMsg   string `json:"error_msg"`
}

func (r *apiOrderResponse) domainState() domain.OrderState {
	switch r.Status {
	case "live", "open":
		return domain.OrderStateSubmitted
	case "partially_matched":
		return domain.OrderStatePartiallyFilled
	case "matched", "filled":
		return domain.OrderStateFilled
	case "cancelled":
		return domain.OrderStateCancelled
	default:
		return domain.OrderStateRejected
	}
}

func (r *apiOrderResponse) filledSize() float64 {
	v, _ := strconv.ParseFloat(r.FilledSize, 64)
	return v
}

func (r *apiOrderResponse) avgPrice() float64 {
	v, _ := strconv.ParseFloat(r.AvgPrice, 64)
	return v
}

func (r *apiOrderResponse) toAck() OrderAck {
	return OrderAck{
		VenueOrderID: r.OrderID,
		Status:       r.domainState(),
		FilledSize:   r.filledSize(),
		AvgFillPrice: r.avgPrice(),
		Message:      r.ErrorMsg,
	}
}

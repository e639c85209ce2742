// Package partydata is the read-only SQL gateway to the leasing data model:
// party members, person applications, published quotes and property
// settings. The screening engine never writes these tables.
package partydata

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

type Source struct {
	db  *sql.DB
	log logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Source {
	return &Source{db: db, log: log}
}

// GetActivePartyMembers returns members without an end date.
func (s *Source) GetActivePartyMembers(ctx context.Context, tenantID, partyID string) ([]models.PartyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, person_id, member_type, full_name, COALESCE(guaranteed_by, ''), end_date
		 FROM party_members
		 WHERE tenant_id = $1 AND party_id = $2 AND end_date IS NULL
		 ORDER BY created_at ASC`,
		tenantID, partyID,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("get active party members", err)
	}
	defer rows.Close()

	var members []models.PartyMember
	for rows.Next() {
		var m models.PartyMember
		var endDate sql.NullTime
		if err := rows.Scan(&m.ID, &m.PersonID, &m.MemberType, &m.FullName, &m.GuaranteedBy, &endDate); err != nil {
			return nil, errors.NewDatabaseError("scan party member", err)
		}
		if endDate.Valid {
			t := endDate.Time
			m.EndDate = &t
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate party members", err)
	}
	return members, nil
}

// GetPersonApplicationsByParty loads the applicant-entered form data for
// every person on the party. application_data is a JSONB column.
func (s *Source) GetPersonApplicationsByParty(ctx context.Context, tenantID, partyID string) ([]models.PersonApplication, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, person_id, party_id, party_application_id, payment_completed, application_data
		 FROM person_applications
		 WHERE tenant_id = $1 AND party_id = $2`,
		tenantID, partyID,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("get person applications", err)
	}
	defer rows.Close()

	var apps []models.PersonApplication
	for rows.Next() {
		var a models.PersonApplication
		var data []byte
		if err := rows.Scan(&a.ID, &a.PersonID, &a.PartyID, &a.PartyApplicationID, &a.PaymentCompleted, &data); err != nil {
			return nil, errors.NewDatabaseError("scan person application", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a.ApplicationData); err != nil {
				return nil, errors.NewInternalError(err)
			}
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate person applications", err)
	}
	return apps, nil
}

// GetPartyApplication returns the party-level application record, nil when
// the party was never opened for applications.
func (s *Source) GetPartyApplication(ctx context.Context, tenantID, partyID string) (*models.PartyApplication, error) {
	var a models.PartyApplication
	var holdReason, leaseType sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, party_id, lease_type, is_held, hold_reason, override_new_count_checks
		 FROM party_applications
		 WHERE tenant_id = $1 AND party_id = $2`,
		tenantID, partyID,
	).Scan(&a.ID, &a.PartyID, &leaseType, &a.IsHeld, &holdReason, &a.OverrideNewCountChecks)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get party application", err)
	}
	a.LeaseType = leaseType.String
	a.HoldReason = holdReason.String
	return &a, nil
}

// GetPublishedQuotes flattens published quotes into one row per lease term.
func (s *Source) GetPublishedQuotes(ctx context.Context, tenantID, partyID string) ([]models.QuoteRentData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, COALESCE(lt.lease_name_id, ''), lt.term_months, lt.rent, COALESCE(lt.deposit, 0)
		 FROM quotes q
		 JOIN quote_lease_terms lt ON lt.quote_id = q.id
		 WHERE q.tenant_id = $1 AND q.party_id = $2 AND q.published_at IS NOT NULL
		 ORDER BY lt.rent DESC`,
		tenantID, partyID,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("get published quotes", err)
	}
	defer rows.Close()

	var quotes []models.QuoteRentData
	for rows.Next() {
		var q models.QuoteRentData
		if err := rows.Scan(&q.QuoteID, &q.LeaseNameID, &q.LeaseTermMonths, &q.Rent, &q.Deposit); err != nil {
			return nil, errors.NewDatabaseError("scan quote", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate quotes", err)
	}
	return quotes, nil
}

// GetPropertySettings loads the screening settings of the party's assigned
// property. settings is a JSONB column holding the screening section.
func (s *Source) GetPropertySettings(ctx context.Context, tenantID, partyID string) (*models.PropertySettings, error) {
	var propertyID string
	var settingsJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT p.id, p.screening_settings
		 FROM properties p
		 JOIN parties pa ON pa.assigned_property_id = p.id
		 WHERE pa.tenant_id = $1 AND pa.id = $2`,
		tenantID, partyID,
	).Scan(&propertyID, &settingsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get property settings", err)
	}

	var settings models.PropertySettings
	if err := json.Unmarshal(settingsJSON, &settings); err != nil {
		return nil, errors.NewInternalError(err)
	}
	settings.PropertyID = propertyID
	return &settings, nil
}

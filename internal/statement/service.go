package statement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tidemark-io/tidemark/internal/dimension"
	"github.com/tidemark-io/tidemark/internal/enrichment"
	"github.com/tidemark-io/tidemark/internal/shared"
)

// defaultTermDays is the payment term applied when an invoice carries no
// explicit due date.
const defaultTermDays = 30

// Service computes monthly statement detail and merchant rollups.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the statement service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// StatementDetails returns every open statement line as of the given date,
// aged against it.
//
// A branch whose customer row is archived still appears when it was merged
// into an active master; only an archived canonical root drops its invoices.
// Resolution failures abort the whole run rather than aging an invoice under
// the wrong merchant.
func (s *Service) StatementDetails(ctx context.Context, asOf time.Time) ([]DetailRow, error) {
	if asOf.IsZero() {
		return nil, shared.Validationf("as-of date is required")
	}
	snap, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return buildDetails(snap, asOf)
}

// MerchantSummaries groups statement detail per merchant group with bucket
// totals and branch counts.
func (s *Service) MerchantSummaries(ctx context.Context, asOf time.Time) ([]MerchantSummary, error) {
	details, err := s.StatementDetails(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return summarise(details), nil
}

// AllowlistedGroups returns the statement allow-list.
func (s *Service) AllowlistedGroups(ctx context.Context) ([]string, error) {
	return s.repo.AllowlistedGroups(ctx)
}

// AddAllowlistedGroup adds a merchant group to the allow-list.
func (s *Service) AddAllowlistedGroup(ctx context.Context, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return shared.Validationf("merchant group is required")
	}
	return s.repo.AddAllowlistedGroup(ctx, group)
}

// RemoveAllowlistedGroup removes a merchant group from the allow-list.
func (s *Service) RemoveAllowlistedGroup(ctx context.Context, group string) error {
	found, err := s.repo.RemoveAllowlistedGroup(ctx, group)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: merchant group %q not allow-listed", shared.ErrNotFound, group)
	}
	return nil
}

func buildDetails(snap Snapshot, asOf time.Time) ([]DetailRow, error) {
	monthEnd := endOfMonth(asOf)
	var out []DetailRow

	for _, inv := range snap.Invoices {
		if inv.Paid || inv.AmountDue <= 0 {
			continue
		}
		if inv.DocumentType != "" && inv.DocumentType != DocumentSale {
			continue
		}
		due := dueDate(inv)
		if due.After(monthEnd) {
			continue
		}

		root, branch, err := resolveCustomer(inv.CustomerID, snap.Customers)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.InvoiceNumber, err)
		}
		if root.Archived {
			continue
		}

		merchantGroup := root.MerchantGroup
		if merchantGroup == "" {
			merchantGroup = branch.MerchantGroup
		}
		if _, ok := snap.Allowlist[merchantGroup]; !ok {
			continue
		}

		customerName := branch.Name
		if customerName == "" {
			customerName = enrichment.UnknownLabel
		}
		out = append(out, DetailRow{
			MerchantGroup:     merchantGroup,
			CustomerName:      customerName,
			HeadOfficeAddress: root.BillTo,
			InvoiceNumber:     inv.InvoiceNumber,
			InvoiceDate:       inv.InvoiceDate,
			DueDate:           due,
			OutstandingAmount: inv.AmountDue,
			AgingBucket:       BucketFor(asOf, due),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MerchantGroup != out[j].MerchantGroup {
			return out[i].MerchantGroup < out[j].MerchantGroup
		}
		if out[i].CustomerName != out[j].CustomerName {
			return out[i].CustomerName < out[j].CustomerName
		}
		return out[i].InvoiceDate.Before(out[j].InvoiceDate)
	})
	return out, nil
}

func summarise(details []DetailRow) []MerchantSummary {
	byGroup := map[string]*MerchantSummary{}
	branches := map[string]map[string]struct{}{}
	for _, row := range details {
		sum, ok := byGroup[row.MerchantGroup]
		if !ok {
			sum = &MerchantSummary{
				MerchantGroup:     row.MerchantGroup,
				HeadOfficeAddress: row.HeadOfficeAddress,
				BucketTotals:      map[string]float64{},
			}
			for _, b := range Buckets {
				sum.BucketTotals[b] = 0
			}
			byGroup[row.MerchantGroup] = sum
			branches[row.MerchantGroup] = map[string]struct{}{}
		}
		sum.InvoiceCount++
		sum.Total += row.OutstandingAmount
		sum.BucketTotals[row.AgingBucket] += row.OutstandingAmount
		branches[row.MerchantGroup][row.CustomerName] = struct{}{}
	}

	out := make([]MerchantSummary, 0, len(byGroup))
	for group, sum := range byGroup {
		sum.BranchCount = len(branches[group])
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchantGroup < out[j].MerchantGroup })
	return out
}

// BucketFor ages a due date against the statement date.
func BucketFor(asOf, due time.Time) string {
	days := daysBetween(due, asOf)
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

func dueDate(inv Invoice) time.Time {
	if inv.DueDate != nil {
		return *inv.DueDate
	}
	return inv.InvoiceDate.AddDate(0, 0, defaultTermDays)
}

// resolveCustomer returns the canonical root row and the invoice's own branch
// row. A customer the dimension never saw is treated as its own root with
// empty attributes.
func resolveCustomer(id int64, customers map[int64]dimension.Customer) (root, branch dimension.Customer, err error) {
	branch = customers[id]
	if _, ok := customers[id]; !ok {
		return dimension.Customer{ID: id}, dimension.Customer{ID: id}, nil
	}
	path, err := dimension.ResolvePath(id, func(id int64) (*int64, bool, error) {
		c, ok := customers[id]
		if !ok {
			return nil, true, nil
		}
		return c.MasterID, true, nil
	})
	if err != nil {
		return dimension.Customer{}, dimension.Customer{}, err
	}
	rootID := path[len(path)-1]
	root, ok := customers[rootID]
	if !ok {
		root = dimension.Customer{ID: rootID}
	}
	return root, branch, nil
}

func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Second)
}

func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay).Hours() / 24)
}

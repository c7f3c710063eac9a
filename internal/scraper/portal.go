package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"portal-sync/internal/models"
)

// Source produces one batch of raw records per extraction attempt.
type Source interface {
	Extract(ctx context.Context) ([]models.RawRecord, error)
}

// Config holds portal endpoints, credentials, and browser settings.
type Config struct {
	LoginURL   string
	RecordsURL string
	Username   string
	Password   string
	Headless   bool
	Retries    int
}

// PortalScraper drives a headless Chrome session through the portal's login
// form and records table.
type PortalScraper struct {
	cfg Config
}

// NewPortal creates a scraper for the configured portal.
func NewPortal(cfg Config) *PortalScraper {
	return &PortalScraper{cfg: cfg}
}

// Extract logs in, loads the records table, and parses it. Transient
// failures are retried up to the configured budget; callers see a single
// outcome. The caller's context bounds the whole call, including browser
// startup.
func (p *PortalScraper) Extract(ctx context.Context) ([]models.RawRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, eris.Wrap(lastErr, "scraper: extraction aborted")
			}
			return nil, eris.Wrap(err, "scraper: extraction aborted")
		}
		records, err := p.extractOnce(ctx)
		if err == nil {
			zap.L().Info("extraction complete", zap.Int("records", len(records)), zap.Int("attempt", attempt+1))
			return records, nil
		}
		lastErr = err
		zap.L().Warn("extraction attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, eris.Wrapf(lastErr, "scraper: extraction failed after %d attempts", p.cfg.Retries+1)
}

func (p *PortalScraper) extractOnce(ctx context.Context) ([]models.RawRecord, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var flashClass string
	var ok bool
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(p.cfg.LoginURL),
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, p.cfg.Username, chromedp.ByID),
		chromedp.SendKeys(`#password`, p.cfg.Password, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitVisible(`#flash`, chromedp.ByID),
		chromedp.AttributeValue(`#flash`, "class", &flashClass, &ok, chromedp.ByID),
	)
	if err != nil {
		return nil, eris.Wrap(err, "scraper: login")
	}
	if !strings.Contains(flashClass, "success") {
		return nil, eris.New("scraper: login rejected by portal")
	}

	var tableHTML string
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(p.cfg.RecordsURL),
		chromedp.WaitVisible(`#table1`, chromedp.ByID),
		chromedp.OuterHTML(`#table1`, &tableHTML, chromedp.ByID),
	)
	if err != nil {
		return nil, eris.Wrap(err, "scraper: load records table")
	}
	return ParseRecordsTable(tableHTML)
}

var authNumberCleaner = strings.NewReplacer("$", "", ",", "")

// ParseRecordsTable maps the portal's table rows to raw records. Rows with
// too few cells, or with an empty name or auth number, are skipped.
func ParseRecordsTable(tableHTML string) ([]models.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, eris.Wrap(err, "scraper: parse records table")
	}

	var records []models.RawRecord
	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		lastName := strings.TrimSpace(cells.Eq(0).Text())
		firstName := strings.TrimSpace(cells.Eq(1).Text())
		due := strings.TrimSpace(cells.Eq(3).Text())

		patientName := strings.TrimSpace(firstName + " " + lastName)
		authNumber := strings.TrimSpace(authNumberCleaner.Replace(due))
		if patientName == "" || authNumber == "" {
			return
		}
		records = append(records, models.RawRecord{
			PatientName: patientName,
			AuthNumber:  authNumber,
			Status:      models.AuthStatusPending,
		})
	})
	return records, nil
}

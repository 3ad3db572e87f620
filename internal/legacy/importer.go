package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/domain/jobpostings"
	"github.com/vaguinhas/vaguinhas/domain/payments"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/database"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

const batchSize = 500

// Counts tallies one kind of row.
type Counts struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Report is the outcome of an import run.
type Report struct {
	DryRun      bool   `json:"dryRun"`
	Users       Counts `json:"users"`
	Feedback    Counts `json:"feedback"`
	Hired       Counts `json:"hired"`
	JobPostings Counts `json:"jobPostings"`
	Payments    Counts `json:"payments"`
}

// Options configure an Importer.
type Options struct {
	// DryRun maps every document without writing.
	DryRun bool
	// Currency is used for payments that do not carry one.
	Currency string
}

// Importer copies legacy documents into Postgres. Rows use ids derived from
// the ObjectIDs and are inserted with ON CONFLICT DO NOTHING, so a run can be
// repeated.
type Importer struct {
	src  Source
	db   bun.IDB
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// NewImporter creates an Importer.
func NewImporter(src Source, db bun.IDB, opts Options, log *slog.Logger) *Importer {
	if opts.Currency == "" {
		opts.Currency = "brl"
	}
	return &Importer{
		src:  src,
		db:   db,
		opts: opts,
		log:  log.With(logger.Scope("legacy.import")),
		now:  time.Now,
	}
}

// Run imports users first, then job postings, then payments.
func (im *Importer) Run(ctx context.Context) (*Report, error) {
	report := &Report{DryRun: im.opts.DryRun}

	if err := im.importUsers(ctx, report); err != nil {
		return report, fmt.Errorf("import users: %w", err)
	}
	if err := im.importJobPostings(ctx, report); err != nil {
		return report, fmt.Errorf("import job postings: %w", err)
	}
	if err := im.importPayments(ctx, report); err != nil {
		return report, fmt.Errorf("import payments: %w", err)
	}

	im.log.Info("legacy import finished",
		slog.Bool("dry_run", report.DryRun),
		slog.Any("users", report.Users),
		slog.Any("feedback", report.Feedback),
		slog.Any("hired", report.Hired),
		slog.Any("job_postings", report.JobPostings),
		slog.Any("payments", report.Payments))
	return report, nil
}

func (im *Importer) importUsers(ctx context.Context, report *Report) error {
	seen := make(map[string]bool)
	var batch []UserRows

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := im.writeUsers(ctx, batch, report)
		batch = batch[:0]
		return err
	}

	err := im.src.EachUser(ctx, func(doc *UserDoc) error {
		report.Users.Read++
		rows, ok := MapUser(doc, im.now())
		if !ok {
			report.Users.Skipped++
			im.log.Warn("skipping legacy user", slog.String("id", doc.ID.Hex()))
			return nil
		}
		if seen[rows.User.Email] {
			report.Users.Skipped++
			return nil
		}
		seen[rows.User.Email] = true
		report.Feedback.Read += len(rows.Feedback)
		report.Hired.Read += len(rows.Hired)

		batch = append(batch, rows)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (im *Importer) writeUsers(ctx context.Context, batch []UserRows, report *Report) error {
	if im.opts.DryRun {
		for _, rows := range batch {
			report.Users.Inserted++
			report.Feedback.Inserted += len(rows.Feedback)
			report.Hired.Inserted += len(rows.Hired)
		}
		return nil
	}

	// Users and their messages land together or not at all.
	return database.InTx(ctx, im.db, func(tx bun.IDB) error {
		return im.writeUserBatch(ctx, tx, batch, report)
	})
}

func (im *Importer) writeUserBatch(ctx context.Context, db bun.IDB, batch []UserRows, report *Report) error {
	list := make([]*users.User, 0, len(batch))
	for _, rows := range batch {
		list = append(list, rows.User)
	}
	n, err := insert(ctx, db, &list)
	if err != nil {
		return err
	}
	report.Users.Inserted += n
	report.Users.Skipped += len(list) - n

	// A user can collide on email with a row created after the cutover. Its
	// messages are only written when our id made it into the table.
	ids := make([]string, 0, len(list))
	for _, u := range list {
		ids = append(ids, u.ID)
	}
	present, err := existingUsers(ctx, db, ids)
	if err != nil {
		return err
	}

	var feedback []*users.Feedback
	var hired []*users.HiredMessage
	for _, rows := range batch {
		if !present[rows.User.ID] {
			report.Feedback.Skipped += len(rows.Feedback)
			report.Hired.Skipped += len(rows.Hired)
			continue
		}
		feedback = append(feedback, rows.Feedback...)
		hired = append(hired, rows.Hired...)
	}

	if len(feedback) > 0 {
		n, err := insert(ctx, db, &feedback)
		if err != nil {
			return err
		}
		report.Feedback.Inserted += n
		report.Feedback.Skipped += len(feedback) - n
	}
	if len(hired) > 0 {
		n, err := insert(ctx, db, &hired)
		if err != nil {
			return err
		}
		report.Hired.Inserted += n
		report.Hired.Skipped += len(hired) - n
	}
	return nil
}

func (im *Importer) importJobPostings(ctx context.Context, report *Report) error {
	var batch []*jobpostings.JobPosting

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		defer func() { batch = batch[:0] }()
		if im.opts.DryRun {
			report.JobPostings.Inserted += len(batch)
			return nil
		}
		n, err := insert(ctx, im.db, &batch)
		if err != nil {
			return err
		}
		report.JobPostings.Inserted += n
		report.JobPostings.Skipped += len(batch) - n
		return nil
	}

	err := im.src.EachJobPosting(ctx, func(doc *JobPostingDoc) error {
		report.JobPostings.Read++
		p, ok := MapJobPosting(doc, im.now())
		if !ok {
			report.JobPostings.Skipped++
			im.log.Warn("skipping legacy job posting", slog.String("id", doc.ID.Hex()))
			return nil
		}
		batch = append(batch, p)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (im *Importer) importPayments(ctx context.Context, report *Report) error {
	var batch []*payments.Payment

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		defer func() { batch = batch[:0] }()
		if im.opts.DryRun {
			report.Payments.Inserted += len(batch)
			return nil
		}

		ids := make([]string, 0, len(batch))
		for _, p := range batch {
			ids = append(ids, p.UserID)
		}
		present, err := existingUsers(ctx, im.db, ids)
		if err != nil {
			return err
		}
		kept := make([]*payments.Payment, 0, len(batch))
		for _, p := range batch {
			if present[p.UserID] {
				kept = append(kept, p)
			}
		}
		report.Payments.Skipped += len(batch) - len(kept)
		if len(kept) == 0 {
			return nil
		}

		n, err := insert(ctx, im.db, &kept)
		if err != nil {
			return err
		}
		report.Payments.Inserted += n
		report.Payments.Skipped += len(kept) - n
		return nil
	}

	err := im.src.EachPayment(ctx, func(doc *PaymentDoc) error {
		report.Payments.Read++
		p, ok := MapPayment(doc, im.opts.Currency, im.now())
		if !ok {
			report.Payments.Skipped++
			im.log.Warn("skipping legacy payment", slog.String("id", doc.ID.Hex()))
			return nil
		}
		batch = append(batch, p)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// insert bulk-inserts a slice model and returns how many rows were new.
func insert(ctx context.Context, db bun.IDB, model any) (int, error) {
	res, err := db.NewInsert().
		Model(model).
		On("CONFLICT DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func existingUsers(ctx context.Context, db bun.IDB, ids []string) (map[string]bool, error) {
	var found []string
	err := db.NewSelect().
		Model((*users.User)(nil)).
		Column("id").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx, &found)
	if err != nil {
		return nil, fmt.Errorf("look up users: %w", err)
	}
	present := make(map[string]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	return present, nil
}

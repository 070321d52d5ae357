package store_test

import (
	"context"
	"database/sql"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fancylads/bespoke/internal/models"
	"github.com/fancylads/bespoke/internal/store"
	"github.com/fancylads/bespoke/internal/store/migrations"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

var _ = Describe("RunStore", func() {
	var (
		ctx context.Context
		s   *store.Store
		db  *sql.DB
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())

		err = migrations.Run(ctx, db)
		Expect(err).NotTo(HaveOccurred())

		s = store.NewStore(db)
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Context("Get", func() {
		// Given an empty store
		// When we look up an unknown run id
		// Then it should return ResourceNotFoundError
		It("should return ResourceNotFoundError for an unknown run", func() {
			// Act
			_, err := s.Runs().Get(ctx, "missing")

			// Assert
			Expect(err).To(HaveOccurred())
			Expect(bkErrors.IsResourceNotFoundError(err)).To(BeTrue())
		})

		// Given a created run
		// When we retrieve it by id
		// Then it should round trip intact
		It("should return a created run", func() {
			// Arrange
			started := time.Now().UTC().Truncate(time.Millisecond)
			run := models.RunRecord{
				ID:        "run-1",
				Name:      "nightly",
				Status:    models.StatusRunning,
				StartedAt: started,
			}
			Expect(s.Runs().Create(ctx, run)).To(Succeed())

			// Act
			got, err := s.Runs().Get(ctx, "run-1")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("nightly"))
			Expect(got.Status).To(Equal(models.StatusRunning))
			Expect(got.StartedAt.UTC()).To(BeTemporally("~", started, time.Second))
			Expect(got.FinishedAt.IsZero()).To(BeTrue())
		})
	})

	Context("Finish", func() {
		// Given a running run
		// When we finish it with a terminal status
		// Then Get should reflect the status, message, and end time
		It("should record the terminal status", func() {
			// Arrange
			started := time.Now().UTC()
			Expect(s.Runs().Create(ctx, models.RunRecord{
				ID:        "run-1",
				Name:      "nightly",
				Status:    models.StatusRunning,
				StartedAt: started,
			})).To(Succeed())

			// Act
			err := s.Runs().Finish(ctx, models.RunRecord{
				ID:         "run-1",
				Status:     models.StatusFail,
				Message:    "two cases failed",
				FinishedAt: started.Add(time.Minute),
			})

			// Assert
			Expect(err).NotTo(HaveOccurred())
			got, err := s.Runs().Get(ctx, "run-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(models.StatusFail))
			Expect(got.Message).To(Equal("two cases failed"))
			Expect(got.FinishedAt.IsZero()).To(BeFalse())
		})

		It("should return ResourceNotFoundError for an unknown run", func() {
			// Act
			err := s.Runs().Finish(ctx, models.RunRecord{ID: "missing", Status: models.StatusPass})

			// Assert
			Expect(bkErrors.IsResourceNotFoundError(err)).To(BeTrue())
		})
	})

	Context("List", func() {
		// Given two runs started at different times
		// When we list them
		// Then the newest should come first
		It("should order runs newest first", func() {
			// Arrange
			base := time.Now().UTC()
			Expect(s.Runs().Create(ctx, models.RunRecord{
				ID: "run-old", Name: "old", Status: models.StatusPass, StartedAt: base.Add(-time.Hour),
			})).To(Succeed())
			Expect(s.Runs().Create(ctx, models.RunRecord{
				ID: "run-new", Name: "new", Status: models.StatusRunning, StartedAt: base,
			})).To(Succeed())

			// Act
			runs, err := s.Runs().List(ctx)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(2))
			Expect(runs[0].ID).To(Equal("run-new"))
			Expect(runs[1].ID).To(Equal("run-old"))
		})
	})
})

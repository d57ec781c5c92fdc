package store_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	st "github.com/ElasticProvisioner/attribution/internal/store"
	"github.com/ElasticProvisioner/attribution/internal/store/model"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(st.Config{Type: "sqlite", Path: filepath.Join(GinkgoT().TempDir(), "jobs.db")})
		Expect(err).To(BeNil())
		gormdb = db

		s = st.NewStore(db)
		Expect(s).ToNot(BeNil())
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	Context("upsert", func() {
		It("inserts a new job", func() {
			job, err := s.Job().Upsert(context.TODO(), model.Job{
				ID:    "12345",
				Kind:  "plain",
				User:  "alice",
				State: model.JobStatePending,
			})
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("replaces the row on a second upsert of the same id", func() {
			_, err := s.Job().Upsert(context.TODO(), model.Job{ID: "12345", State: model.JobStatePending})
			Expect(err).To(BeNil())
			_, err = s.Job().Upsert(context.TODO(), model.Job{ID: "12345", State: model.JobStateTerminal, SlurmState: "COMPLETED"})
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), "12345")
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(model.JobStateTerminal))
			Expect(job.SlurmState).To(Equal("COMPLETED"))

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})
	})

	Context("get", func() {
		It("returns ErrRecordNotFound for an unknown id", func() {
			_, err := s.Job().Get(context.TODO(), "nope")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("filters by state", func() {
			_, err := s.Job().Upsert(context.TODO(), model.Job{ID: "1", State: model.JobStatePending})
			Expect(err).To(BeNil())
			_, err = s.Job().Upsert(context.TODO(), model.Job{ID: "2", State: model.JobStateSubmitted})
			Expect(err).To(BeNil())
			_, err = s.Job().Upsert(context.TODO(), model.Job{ID: "3", State: model.JobStateSubmitted})
			Expect(err).To(BeNil())

			jobs, err := s.Job().ListByState(context.TODO(), model.JobStateSubmitted)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))

			all, err := s.Job().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(all).To(HaveLen(3))
		})
	})

	Context("delete before", func() {
		It("prunes only finished rows older than the cutoff", func() {
			_, err := s.Job().Upsert(context.TODO(), model.Job{ID: "old-submitted", State: model.JobStateSubmitted})
			Expect(err).To(BeNil())
			_, err = s.Job().Upsert(context.TODO(), model.Job{ID: "old-pending", State: model.JobStatePending})
			Expect(err).To(BeNil())
			_, err = s.Job().Upsert(context.TODO(), model.Job{ID: "fresh-submitted", State: model.JobStateSubmitted})
			Expect(err).To(BeNil())

			old := time.Now().Add(-48 * time.Hour)
			Expect(gormdb.Exec("UPDATE jobs SET updated_at = ? WHERE id IN ('old-submitted', 'old-pending');", old).Error).To(BeNil())

			deleted, err := s.Job().DeleteBefore(context.TODO(),
				[]string{model.JobStateSubmitted, model.JobStateUnresolved}, time.Now().Add(-24*time.Hour))
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(1)))

			_, err = s.Job().Get(context.TODO(), "old-submitted")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
			_, err = s.Job().Get(context.TODO(), "old-pending")
			Expect(err).To(BeNil())
		})
	})
})

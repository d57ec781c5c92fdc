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

var _ = Describe("ledger store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(st.Config{Type: "sqlite", Path: filepath.Join(GinkgoT().TempDir(), "ledger.db")})
		Expect(err).To(BeNil())
		gormdb = db

		s = st.NewStore(db)
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM cache_entries;")
	})

	entry := func(key string) model.CacheEntry {
		return model.CacheEntry{
			Key:           key,
			Path:          "/scratch/logs/" + key,
			FileModTime:   time.Now().UnixNano(),
			FileSize:      1024,
			Result:        `{"result_id":"r1","state":"done"}`,
			FirstCachedAt: time.Now(),
		}
	}

	Context("replace", func() {
		It("stores the given entries", func() {
			Expect(s.Ledger().Replace(context.TODO(), model.CacheEntryList{entry("a.out"), entry("b.out")})).To(BeNil())

			entries, err := s.Ledger().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(2))
		})

		It("drops rows absent from the new set", func() {
			Expect(s.Ledger().Replace(context.TODO(), model.CacheEntryList{entry("a.out"), entry("b.out")})).To(BeNil())
			Expect(s.Ledger().Replace(context.TODO(), model.CacheEntryList{entry("c.out")})).To(BeNil())

			entries, err := s.Ledger().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Key).To(Equal("c.out"))
		})

		It("clears the table for an empty set", func() {
			Expect(s.Ledger().Replace(context.TODO(), model.CacheEntryList{entry("a.out")})).To(BeNil())
			Expect(s.Ledger().Replace(context.TODO(), nil)).To(BeNil())

			entries, err := s.Ledger().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(BeEmpty())
		})

		It("keeps the previous rows when the transaction rolls back", func() {
			Expect(s.Ledger().Replace(context.TODO(), model.CacheEntryList{entry("a.out"), entry("b.out")})).To(BeNil())

			txCtx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())
			Expect(s.Ledger().Replace(txCtx, model.CacheEntryList{entry("c.out")})).To(BeNil())
			_, err = st.Rollback(txCtx)
			Expect(err).To(BeNil())

			entries, err := s.Ledger().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(2))
		})

		It("publishes the new rows on commit", func() {
			txCtx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())
			Expect(s.Ledger().Replace(txCtx, model.CacheEntryList{entry("c.out")})).To(BeNil())
			_, err = st.Commit(txCtx)
			Expect(err).To(BeNil())

			entries, err := s.Ledger().List(context.TODO())
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Key).To(Equal("c.out"))
		})
	})
})

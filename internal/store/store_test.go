package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
)

var _ = Describe("BoltStore", func() {
	var (
		dbPath string
		st     *BoltStore
		clock  time.Time
		t0     = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "nested", "bookscan.db")
		var err error
		st, err = Open(dbPath)
		Expect(err).NotTo(HaveOccurred())
		clock = t0
		st.now = func() time.Time { return clock }
	})

	AfterEach(func() {
		if st != nil {
			st.Close()
		}
	})

	It("creates the database file and its directory", func() {
		Expect(dbPath).To(BeAnExistingFile())
	})

	Describe("Record", func() {
		var (
			rec *Record
			err error
		)

		When("the book is new", func() {
			JustBeforeEach(func() {
				rec, err = st.Record(Scan{
					ISBN:   "4-06-131336-3",
					Source: SourceCamera,
					Book:   &metadata.Book{ISBN: "9784061313361", Title: "Norwegian Wood"},
				})
			})

			It("stores it under the canonical key", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.ISBN).To(Equal("9784061313361"))
				Expect(rec.Count).To(Equal(1))
				Expect(rec.FirstScanned).To(Equal(t0))
				Expect(rec.LastScanned).To(Equal(t0))
				Expect(rec.Source).To(Equal(SourceCamera))
			})

			It("can be read back in either form", func() {
				Expect(err).NotTo(HaveOccurred())
				got, getErr := st.Get("4061313363")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(got.Book.Title).To(Equal("Norwegian Wood"))
			})
		})

		When("the book was scanned before", func() {
			BeforeEach(func() {
				_, err := st.Record(Scan{
					ISBN:  "9784061313361",
					Book:  &metadata.Book{Title: "Norwegian Wood"},
					Price: &price.Quote{ISBN: "9784061313361", Price: 800},
				})
				Expect(err).NotTo(HaveOccurred())
				clock = t0.Add(time.Hour)
			})

			JustBeforeEach(func() {
				rec, err = st.Record(Scan{ISBN: "9784061313361", Source: SourceImage})
			})

			It("bumps the count and the last scan time", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Count).To(Equal(2))
				Expect(rec.FirstScanned).To(Equal(t0))
				Expect(rec.LastScanned).To(Equal(t0.Add(time.Hour)))
			})

			It("keeps metadata the new scan does not carry", func() {
				Expect(rec.Book.Title).To(Equal("Norwegian Wood"))
				Expect(rec.Price.Price).To(Equal(800))
				Expect(rec.Source).To(Equal(SourceImage))
			})
		})

		When("the key is not an ISBN", func() {
			JustBeforeEach(func() {
				rec, err = st.Record(Scan{ISBN: "4901234567894"})
			})

			It("rejects it", func() {
				Expect(err).To(MatchError(ErrInvalidISBN))
				Expect(rec).To(BeNil())
			})
		})
	})

	Describe("Get", func() {
		It("returns ErrNotFound for unknown books", func() {
			_, err := st.Get("9780306406157")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("returns ErrInvalidISBN for garbage", func() {
			_, err := st.Get("hello")
			Expect(err).To(MatchError(ErrInvalidISBN))
		})
	})

	Describe("List", func() {
		It("is empty on a fresh store", func() {
			records, err := st.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("orders by last scan, newest first", func() {
			for i, code := range []string{"9780306406157", "9784061313361", "9791032300824"} {
				clock = t0.Add(time.Duration(i) * time.Minute)
				_, err := st.Record(Scan{ISBN: code})
				Expect(err).NotTo(HaveOccurred())
			}
			clock = t0.Add(time.Hour)
			_, err := st.Record(Scan{ISBN: "9780306406157"})
			Expect(err).NotTo(HaveOccurred())

			records, err := st.List()
			Expect(err).NotTo(HaveOccurred())
			keys := make([]string, 0, len(records))
			for _, r := range records {
				keys = append(keys, r.ISBN)
			}
			Expect(keys).To(Equal([]string{"9780306406157", "9791032300824", "9784061313361"}))
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			_, err := st.Record(Scan{ISBN: "9784061313361"})
			Expect(err).NotTo(HaveOccurred())
			Expect(st.CachePrice(&price.Quote{ISBN: "9784061313361", Price: 500})).To(Succeed())
		})

		It("removes the record and its cached price", func() {
			Expect(st.Delete("4061313363")).To(Succeed())
			_, err := st.Get("9784061313361")
			Expect(err).To(MatchError(ErrNotFound))
			_, ok, err := st.CachedPrice("9784061313361", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("reports unknown books", func() {
			Expect(st.Delete("9780306406157")).To(MatchError(ErrNotFound))
		})
	})

	Describe("price cache", func() {
		BeforeEach(func() {
			Expect(st.CachePrice(&price.Quote{ISBN: "4061313363", Price: 1234, Currency: "JPY"})).To(Succeed())
		})

		It("serves fresh entries", func() {
			clock = t0.Add(30 * time.Minute)
			q, ok, err := st.CachedPrice("9784061313361", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(q.Price).To(Equal(1234))
		})

		It("expires old entries", func() {
			clock = t0.Add(2 * time.Hour)
			_, ok, err := st.CachedPrice("9784061313361", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("misses unknown books", func() {
			_, ok, err := st.CachedPrice("9780306406157", time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("rejects quotes without an ISBN", func() {
			Expect(st.CachePrice(&price.Quote{})).To(MatchError(ErrInvalidISBN))
			Expect(st.CachePrice(nil)).NotTo(Succeed())
		})
	})

	Describe("export", func() {
		BeforeEach(func() {
			_, err := st.Record(Scan{
				ISBN:   "9784061313361",
				Source: SourceCamera,
				Book: &metadata.Book{
					ISBN10:  "4061313363",
					Title:   "Norwegian Wood, Vol. 1",
					Authors: []string{"Haruki Murakami", "Jay Rubin"},
				},
				Price: &price.Quote{Price: 800, Currency: "JPY", Type: price.OfferUsed},
			})
			Expect(err).NotTo(HaveOccurred())
			clock = t0.Add(time.Minute)
			_, err = st.Record(Scan{ISBN: "9780306406157"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes CSV with a header row", func() {
			var buf bytes.Buffer
			Expect(st.ExportCSV(&buf)).To(Succeed())

			rows, err := csv.NewReader(&buf).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0]).To(Equal(csvHeader))
			Expect(rows[1][0]).To(Equal("9780306406157"))
			Expect(rows[2][2]).To(Equal("Norwegian Wood, Vol. 1"))
			Expect(rows[2][3]).To(Equal("Haruki Murakami; Jay Rubin"))
			Expect(rows[2][6]).To(Equal("800"))
			Expect(rows[2][11]).To(Equal("2024-03-01T09:00:00Z"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			Expect(st.ExportJSON(&buf)).To(Succeed())

			var records []Record
			Expect(json.Unmarshal(buf.Bytes(), &records)).To(Succeed())
			Expect(records).To(HaveLen(2))
			Expect(records[1].Book.Authors).To(ContainElement("Jay Rubin"))
		})
	})

	Describe("reopening", func() {
		It("keeps the history", func() {
			_, err := st.Record(Scan{ISBN: "9784061313361"})
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Close()).To(Succeed())

			st, err = Open(dbPath)
			Expect(err).NotTo(HaveOccurred())
			rec, err := st.Get("9784061313361")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Count).To(Equal(1))
		})
	})
})

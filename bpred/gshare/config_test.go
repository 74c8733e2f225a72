package gshare_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/bpred/gshare"
)

var _ = Describe("Config", func() {
	Describe("Defaults", func() {
		It("should use sensible defaults", func() {
			config := gshare.DefaultConfig()
			Expect(config.HistoryBits).To(Equal(uint(13)))
			Expect(config.CounterBits).To(Equal(uint(2)))
			Expect(config.NumThreads).To(Equal(1))
			Expect(config.PCHashOffset).To(Equal(uint(2)))
			Expect(config.CounterInit).To(Equal(uint8(0)))
			Expect(config.IndexScheme).To(Equal(gshare.SchemeGShare))
			Expect(config.Validate()).To(Succeed())
		})
	})

	Describe("Validate", func() {
		var config *gshare.Config

		BeforeEach(func() {
			config = gshare.DefaultConfig()
		})

		DescribeTable("rejecting bad values",
			func(mutate func(c *gshare.Config), message string) {
				mutate(config)
				err := config.Validate()
				Expect(err).To(MatchError(gshare.ErrInvalidConfig))
				Expect(err.Error()).To(ContainSubstring(message))
			},
			Entry("zero history bits",
				func(c *gshare.Config) { c.HistoryBits = 0 }, "history_bits must be > 0"),
			Entry("oversized history",
				func(c *gshare.Config) { c.HistoryBits = gshare.MaxHistoryBits + 1 }, "history_bits must be <="),
			Entry("zero counter bits",
				func(c *gshare.Config) { c.CounterBits = 0 }, "counter_bits must be > 0"),
			Entry("oversized counters",
				func(c *gshare.Config) { c.CounterBits = 9 }, "counter_bits must be <="),
			Entry("zero threads",
				func(c *gshare.Config) { c.NumThreads = 0 }, "num_threads must be > 0"),
			Entry("negative threads",
				func(c *gshare.Config) { c.NumThreads = -2 }, "num_threads must be > 0"),
			Entry("hash offset past the address",
				func(c *gshare.Config) { c.PCHashOffset = 60 }, "pc_hash_offset + history_bits"),
			Entry("hash offset that wraps the sum",
				func(c *gshare.Config) { c.PCHashOffset = ^uint(0) - 5 }, "pc_hash_offset + history_bits"),
			Entry("counter init above max",
				func(c *gshare.Config) { c.CounterInit = 4 }, "counter_init"),
			Entry("unknown scheme",
				func(c *gshare.Config) { c.IndexScheme = "tournament" }, "unknown index_scheme"),
		)

		It("should accept the boundary values", func() {
			config.HistoryBits = gshare.MaxHistoryBits
			config.CounterBits = 8
			config.CounterInit = 255
			config.PCHashOffset = 64 - gshare.MaxHistoryBits
			config.IndexScheme = gshare.SchemeGlobal
			Expect(config.Validate()).To(Succeed())
		})
	})

	It("should reject a wrapping hash offset read from JSON", func() {
		path := filepath.Join(GinkgoT().TempDir(), "wrap.json")
		Expect(os.WriteFile(path, []byte(`{"pc_hash_offset": 18446744073709551610}`), 0644)).To(Succeed())

		loaded, err := gshare.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Validate()).To(MatchError(gshare.ErrInvalidConfig))

		_, err = gshare.New(loaded)
		Expect(err).To(MatchError(gshare.ErrInvalidConfig))
	})

	Describe("Load and save", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("should round trip through JSON", func() {
			config := gshare.DefaultConfig()
			config.HistoryBits = 10
			config.NumThreads = 4
			config.CounterInit = 1
			config.IndexScheme = gshare.SchemeGlobal

			path := filepath.Join(dir, "bp.json")
			Expect(config.SaveConfig(path)).To(Succeed())

			loaded, err := gshare.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should keep defaults for fields absent from the file", func() {
			path := filepath.Join(dir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"history_bits": 6, "num_threads": 2}`), 0644)).To(Succeed())

			loaded, err := gshare.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.HistoryBits).To(Equal(uint(6)))
			Expect(loaded.NumThreads).To(Equal(2))
			Expect(loaded.CounterBits).To(Equal(uint(2)))
			Expect(loaded.IndexScheme).To(Equal(gshare.SchemeGShare))
		})

		It("should report a missing file", func() {
			_, err := gshare.LoadConfig(filepath.Join(dir, "missing.json"))
			Expect(err).To(MatchError(ContainSubstring("failed to read predictor config file")))
		})

		It("should report malformed JSON", func() {
			path := filepath.Join(dir, "bad.json")
			Expect(os.WriteFile(path, []byte(`{"history_bits": "many"}`), 0644)).To(Succeed())

			_, err := gshare.LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("failed to parse predictor config")))
		})
	})

	It("should clone independently", func() {
		config := gshare.DefaultConfig()
		clone := config.Clone()
		clone.HistoryBits = 4
		Expect(config.HistoryBits).To(Equal(uint(13)))
		Expect(clone).NotTo(BeIdenticalTo(config))
	})
})

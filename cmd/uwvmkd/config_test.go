package main

import (
	"github.com/spf13/viper"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("loadDaemonConfig", func() {
	It("fills every key from defaultDaemonConfig when the source is empty", func() {
		cfg, err := loadDaemonConfig(viper.New())
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(defaultDaemonConfig()))
	})

	It("overrides only the keys the source sets", func() {
		v := viper.New()
		v.Set("log_level", "debug")
		v.Set("root_path", "/tmp/uwvmkd-root")

		cfg, err := loadDaemonConfig(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LogLevel).To(Equal("debug"))
		Expect(cfg.RootPath).To(Equal("/tmp/uwvmkd-root"))
		Expect(cfg.ListenSocket).To(Equal(defaultDaemonConfig().ListenSocket))
		Expect(cfg.Cartel.DescriptorCap).To(Equal(defaultDaemonConfig().Cartel.DescriptorCap))
	})
})

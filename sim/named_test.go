package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("ValidateName",
	func(name string, valid bool) {
		err := ValidateName(name)

		if valid {
			Expect(err).ToNot(HaveOccurred())
			Expect(func() { NameMustBeValid(name) }).ToNot(Panic())
		} else {
			Expect(err).To(HaveOccurred())
			Expect(func() { NameMustBeValid(name) }).To(Panic())
		}
	},
	Entry("simple", "n0", true),
	Entry("nested", "City.Hospital[2].Eth0", true),
	Entry("empty", "", false),
	Entry("space", "a b", false),
	Entry("empty token", "a..b", false),
	Entry("unclosed bracket", "Hospital[2", false),
	Entry("closing first", "Hospital]2[", false),
)

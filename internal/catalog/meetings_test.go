package catalog

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rhyrak/go-registrar/pkg/model"
)

var _ = Describe("ParseMeetings", func() {
	clock := func(s string) model.Clock {
		c, err := model.ParseClock(s)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("should read one interval per method line", func() {
		text := "08/26/2024-12/13/2024 KJ 101 LEC 1 MWF 10:00AM 10:50AM\n" +
			"08/26/2024-12/13/2024 TAY 2 LAB 1 R 1:00PM 4:00PM"
		m, ok := ParseMeetings(text)
		Expect(ok).To(BeTrue())
		Expect(m).To(Equal([]model.MeetingInterval{
			{Days: "MWF", Start: clock("10:00AM"), End: clock("10:50AM")},
			{Days: "R", Start: clock("1:00PM"), End: clock("4:00PM")},
		}))
	})

	It("should split days fused with the start time", func() {
		m, ok := ParseMeetings("SCI 1 STU 1 MWF10:00AM 10:50AM")
		Expect(ok).To(BeTrue())
		Expect(m).To(Equal([]model.MeetingInterval{{Days: "MWF", Start: clock("10:00AM"), End: clock("10:50AM")}}))
	})

	It("should collapse consecutive repeats", func() {
		line := "SCI 1 LEC 1 TR 9:00AM 10:15AM"
		m, ok := ParseMeetings(line + "\n" + line + "\nROOM CHANGE\n" + line)
		Expect(ok).To(BeTrue())
		Expect(m).To(HaveLen(1))
	})

	It("should ignore lines without a method", func() {
		m, ok := ParseMeetings("Hybrid course\nSCI 1 LEC 1 TR 9:00AM 10:15AM")
		Expect(ok).To(BeTrue())
		Expect(m).To(HaveLen(1))
	})

	DescribeTable("should reject unreadable text",
		func(text string) {
			m, ok := ParseMeetings(text)
			Expect(ok).To(BeFalse())
			Expect(m).To(BeEmpty())
		},
		Entry("no method", "TBA"),
		Entry("method at the end", "SCI 1 LEC"),
		Entry("too few fields", "SCI 1 LEC 1 MWF"),
		Entry("bad clock", "SCI 1 LEC 1 MWF 25:00AM 10:50AM"),
		Entry("one bad line spoils all", "SCI 1 LEC 1 MWF 9:00AM 9:50AM\nSCI 1 LAB 1 R"),
	)
})

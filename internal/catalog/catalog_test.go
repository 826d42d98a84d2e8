package catalog

import (
	"context"
	"errors"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rhyrak/go-registrar/internal/catalog/catalogtest"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/pkg/model"
)

var _ = Describe("Build", func() {
	var (
		r   *rules.Rules
		cat *Catalog
	)

	BeforeEach(func() {
		var err error
		r, err = rules.Default()
		Expect(err).NotTo(HaveOccurred())
		cat, err = Build(context.Background(), catalogtest.Standard(), r)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("multi-section courses", func() {
		It("should name the group after the first section", func() {
			Expect(cat.Members("CALCULUS I-02")).To(Equal([]model.SectionID{"CALCULUS I", "CALCULUS I-02"}))
			s, ok := cat.Section("CALCULUS I-02")
			Expect(ok).To(BeTrue())
			Expect(s.Group).To(Equal(model.SectionID("CALCULUS I")))
		})

		It("should treat standalone sections as their own group", func() {
			Expect(cat.Members("CALCULUS II")).To(Equal([]model.SectionID{"CALCULUS II"}))
			Expect(cat.Members("NO SUCH COURSE")).To(BeNil())
		})
	})

	Context("cross-listed courses", func() {
		It("should share one seat pool at the smallest capacity", func() {
			s, ok := cat.Section("AMERICAN CULTURE")
			Expect(ok).To(BeTrue())
			Expect(s.CrossListed).To(BeTrue())
			Expect(s.Seats).To(Equal(8))
			Expect(cat.CrossListing("AMERICAN CULTURE")).To(Equal([]string{"AMST 210", "HIST 210"}))
			Expect(cat.CrossListed()).To(Equal([]model.SectionID{"AMERICAN CULTURE"}))
		})

		It("should resolve every alias to the canonical section", func() {
			res := cat.Resolve("HIST 210")
			Expect(res.Found()).To(BeTrue())
			Expect(res.Course).To(Equal(model.SectionID("AMERICAN CULTURE")))
			Expect(res.Via).To(Equal(ByCrossListing))
		})

		It("should keep cross-listed courses out of the department map", func() {
			deps := cat.Departments()
			Expect(deps).NotTo(HaveKey("AMST"))
			Expect(deps["HIST"]).To(Equal([]model.SectionID{"FIRST YEAR SEMINAR"}))
		})
	})

	Context("labs", func() {
		It("should zero lab credit and flag every lab section", func() {
			for _, id := range []model.SectionID{"MECHANICS LAB", "INTRO BIOLOGY LAB", "INTRO BIOLOGY LAB-L2"} {
				s, ok := cat.Section(id)
				Expect(ok).To(BeTrue())
				Expect(s.Lab).To(BeTrue())
				Expect(s.Credit).To(BeZero())
			}
			Expect(cat.Labs()).To(ConsistOf(
				model.SectionID("MECHANICS LAB"),
				model.SectionID("INTRO BIOLOGY LAB"),
				model.SectionID("INTRO BIOLOGY LAB-L2"),
			))
		})

		It("should link a lab to its lecture by course name", func() {
			links := cat.LabLinks()
			Expect(links).To(HaveLen(2))
			var mech model.LabLink
			for _, l := range links {
				if l.Lab == "MECHANICS LAB" {
					mech = l
				}
			}
			Expect(mech.Parents).To(Equal([]model.SectionID{"MECHANICS"}))
			Expect(mech.Sections).To(Equal([]model.SectionID{"MECHANICS LAB"}))
		})

		It("should fall back to lettered lecture sections", func() {
			var bio model.LabLink
			for _, l := range cat.LabLinks() {
				if l.Lab == "INTRO BIOLOGY LAB" {
					bio = l
				}
			}
			Expect(bio.Orphan()).To(BeFalse())
			Expect(bio.Sections).To(Equal([]model.SectionID{"INTRO BIOLOGY LAB", "INTRO BIOLOGY LAB-L2"}))
			Expect(bio.Parents).To(Equal([]model.SectionID{"INTRO BIOLOGY", "INTRO BIOLOGY-E"}))
		})

		It("should leave labs out of the department map", func() {
			Expect(cat.Departments()["PHYS"]).To(Equal([]model.SectionID{"MECHANICS"}))
		})
	})

	Context("flags", func() {
		It("should honour the writing intensive exception list", func() {
			la, _ := cat.Section("LINEAR ALGEBRA")
			Expect(la.WritingIntensive).To(BeFalse())
			fys, _ := cat.Section("FIRST YEAR SEMINAR")
			Expect(fys.WritingIntensive).To(BeTrue())
			Expect(fys.FirstYearComposition).To(BeTrue())
		})
	})

	Context("filtering", func() {
		It("should drop ignored courses", func() {
			_, ok := cat.Section("PHYSICS PREVIEW")
			Expect(ok).To(BeFalse())
			Expect(cat.Resolve("PHYS 100L").Found()).To(BeFalse())
		})

		It("should skip sections without meeting text and keep unreadable ones", func() {
			_, ok := cat.Section("ART HISTORY SURVEY")
			Expect(ok).To(BeFalse())

			dance, ok := cat.Section("MODERN DANCE I")
			Expect(ok).To(BeTrue())
			Expect(dance.HasMeetings()).To(BeFalse())

			Expect(cat.NoMeetings()).To(ConsistOf("ART HISTORY SURVEY : No information given", "MODERN DANCE I"))
		})
	})

	Context("course name resolution", func() {
		It("should resolve course names first", func() {
			res := cat.Resolve("MATH 113")
			Expect(res.Via).To(Equal(ByCourseName))
			Expect(res.Course).To(Equal(model.SectionID("CALCULUS I")))
		})

		It("should resolve a department offering one course", func() {
			res := cat.Resolve("DANCE")
			Expect(res.Via).To(Equal(BySingletonDepartment))
			Expect(res.Course).To(Equal(model.SectionID("MODERN DANCE I")))
			Expect(cat.Resolve("MATH").Found()).To(BeFalse())
			Expect(cat.SingletonDepartments()).NotTo(HaveKey("ARTH"))
		})

		It("should report the first name tried when nothing matches", func() {
			res := cat.ResolveFirst("MATH 999", "MATH 99")
			Expect(res.Found()).To(BeFalse())
			Expect(res.Raw).To(Equal("MATH 999"))
			Expect(res.Via.String()).To(Equal("unresolved"))

			res = cat.ResolveFirst("MATH 113X", "MATH 113")
			Expect(res.Found()).To(BeTrue())
			Expect(res.Raw).To(Equal("MATH 113"))
		})
	})

	Context("lunch blocks", func() {
		It("should add one private group per weekday", func() {
			lunches := cat.Lunches()
			Expect(lunches).To(HaveLen(35))
			Expect(cat.Members("LUNCH T 1:00PM")).To(HaveLen(7))
			Expect(cat.Members("LUNCH T 1:00PM")[0]).To(Equal(model.SectionID("LUNCH T 11:00AM")))

			s, ok := cat.Section("LUNCH F 2:00PM")
			Expect(ok).To(BeTrue())
			Expect(s.Lunch).To(BeTrue())
			Expect(s.Seats).To(Equal(1000))
			Expect(s.Meetings).To(Equal([]model.MeetingInterval{{Days: "F", Start: 14 * 60, End: 14*60 + 30}}))
			Expect(cat.Departments()).NotTo(HaveKey("lunch"))
		})
	})

	It("should be deterministic", func() {
		again, err := Build(context.Background(), catalogtest.Standard(), r)
		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(cat.Groups(), again.Groups())).To(BeEmpty())
		Expect(cmp.Diff(cat.LabLinks(), again.LabLinks())).To(BeEmpty())
		Expect(cmp.Diff(cat.Departments(), again.Departments())).To(BeEmpty())
	})
})

var _ = Describe("Build with bad data", func() {
	var r *rules.Rules

	BeforeEach(func() {
		var err error
		r, err = rules.Default()
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject an unreadable capacity", func() {
		rec := catalogtest.Record("CHEM", "120", "GENERAL CHEMISTRY", "01", 0, "1", "", catalogtest.Lecture("MWF", "9:00AM", "9:50AM"))
		rec.Capacity = "twenty"
		rec.Row = 7

		_, err := Build(context.Background(), []model.CatalogRecord{rec}, r)
		var die *model.DataIntegrityError
		Expect(errors.As(err, &die)).To(BeTrue())
		Expect(die.Row).To(Equal(7))
		Expect(die.Field).To(Equal("Sched Capacity"))
	})

	It("should read the cross-list capacity when present", func() {
		rec := catalogtest.Record("CHEM", "120", "GENERAL CHEMISTRY", "01", 30, "1", "", catalogtest.Lecture("MWF", "9:00AM", "9:50AM"))
		rec.XListCapacity = "x"

		_, err := Build(context.Background(), []model.CatalogRecord{rec}, r)
		var die *model.DataIntegrityError
		Expect(errors.As(err, &die)).To(BeTrue())
		Expect(die.Field).To(Equal("XList Capacity"))
	})

	It("should reject an unreadable credit", func() {
		rec := catalogtest.Record("CHEM", "120", "GENERAL CHEMISTRY", "01", 30, "one", "", catalogtest.Lecture("MWF", "9:00AM", "9:50AM"))
		_, err := Build(context.Background(), []model.CatalogRecord{rec}, r)
		Expect(err).To(HaveOccurred())
	})

	It("should clamp overfull sections to zero seats", func() {
		rec := catalogtest.Record("CHEM", "120", "GENERAL CHEMISTRY", "01", 10, "1", "", catalogtest.Lecture("MWF", "9:00AM", "9:50AM"))
		rec.Enrolled = "14"

		cat, err := Build(context.Background(), []model.CatalogRecord{rec}, r)
		Expect(err).NotTo(HaveOccurred())
		s, _ := cat.Section("GENERAL CHEMISTRY")
		Expect(s.Seats).To(BeZero())
	})

	It("should reject a repeated section label", func() {
		a := catalogtest.Record("CHEM", "120", "GENERAL CHEMISTRY", "01", 10, "1", "", catalogtest.Lecture("MWF", "9:00AM", "9:50AM"))
		_, err := Build(context.Background(), []model.CatalogRecord{a, a, a}, r)
		Expect(err).To(HaveOccurred())
	})
})

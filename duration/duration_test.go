package duration

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Parse", t, func() {
		Convey("Minute suffix wins over everything else", func() {
			So(Parse("45min"), ShouldEqual, 2700)
			So(Parse("45 min"), ShouldEqual, 2700)
			So(Parse("10 mins"), ShouldEqual, 600)
			So(Parse("3 minutes"), ShouldEqual, 180)
			So(Parse("8 minutos"), ShouldEqual, 480)
			So(Parse("1.5min"), ShouldEqual, 90)
			So(Parse("1,5 min"), ShouldEqual, 90)
			So(Parse("Duração: 12 MINUTOS"), ShouldEqual, 720)
		})

		Convey("Clock formats", func() {
			So(Parse("12:30"), ShouldEqual, 750)
			So(Parse("0:50"), ShouldEqual, 50)
			So(Parse("1:02:03"), ShouldEqual, 3723)
			So(Parse(" 05:00 "), ShouldEqual, 300)
		})

		Convey("Trailing unit shorthand", func() {
			So(Parse("90s"), ShouldEqual, 90)
			So(Parse("5m"), ShouldEqual, 300)
			So(Parse("5 m"), ShouldEqual, 300)
			So(Parse("2h"), ShouldEqual, 7200)
		})

		Convey("Digits are taken as seconds as a last resort", func() {
			So(Parse("120"), ShouldEqual, 120)
			So(Parse("about 42 or so"), ShouldEqual, 42)
			So(Parse("3minx"), ShouldEqual, 3)
		})

		Convey("Unparseable input means unknown", func() {
			So(Parse(""), ShouldEqual, 0)
			So(Parse("   "), ShouldEqual, 0)
			So(Parse("soon"), ShouldEqual, 0)
			So(Parse("99999999999999999999999"), ShouldEqual, 0)
		})

		Convey("It is deterministic", func() {
			for _, raw := range []string{"45min", "12:30", "90s", "5m", "abc", "7"} {
				first := Parse(raw)
				for i := 0; i < 5; i++ {
					So(Parse(raw), ShouldEqual, first)
				}
				So(first, ShouldBeGreaterThanOrEqualTo, 0)
			}
		})
	})
}

func TestFormat(t *testing.T) {
	Convey("Format", t, func() {
		So(Format(0), ShouldEqual, "0:00")
		So(Format(50), ShouldEqual, "0:50")
		So(Format(750), ShouldEqual, "12:30")
		So(Format(3723), ShouldEqual, "1:02:03")
		So(Format(-4), ShouldEqual, "0:00")
	})
}

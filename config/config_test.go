package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/key"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestSetup(t *testing.T) {
	Convey("Config Setup", t, func() {
		Convey("Should initialize without error", func() {
			err := Setup()
			So(err, ShouldBeNil)
		})

		Convey("Should have default values populated", func() {
			_ = Setup()
			for name := range Default {
				So(viper.Get(name), ShouldNotBeNil)
			}
		})

		Convey("Should default to the documented completion heuristics", func() {
			_ = Setup()
			So(viper.GetInt(key.CompletionLongPercent), ShouldEqual, 90)
			So(viper.GetInt(key.CompletionTailSeconds), ShouldEqual, 10)
			So(viper.GetInt(key.CompletionShortPercent), ShouldEqual, 80)
			So(viper.GetInt(key.CompletionShortCutoff), ShouldEqual, 60)
		})

		Convey("EnvKeyReplacer should convert dots to underscores", func() {
			result := EnvKeyReplacer.Replace("tracking.heartbeat_interval")
			So(result, ShouldEqual, "tracking_heartbeat_interval")
		})
	})
}

func TestDuration(t *testing.T) {
	Convey("Given an interval setting", t, func() {
		_ = Setup()

		Convey("It scales the configured value", func() {
			viper.Set(key.TrackingHeartbeatInterval, 12)
			So(Duration(key.TrackingHeartbeatInterval, time.Second), ShouldEqual, 12*time.Second)
		})

		Convey("It falls back to the default for non-positive values", func() {
			viper.Set(key.TrackingHeartbeatInterval, 0)
			So(Duration(key.TrackingHeartbeatInterval, time.Second), ShouldEqual, 30*time.Second)
		})

		Reset(func() {
			viper.Set(key.TrackingHeartbeatInterval, Default[key.TrackingHeartbeatInterval].Value)
		})
	})
}

func TestFieldEnv(t *testing.T) {
	Convey("Field.Env prefixes the application name", t, func() {
		f := Default[key.BackendBaseURL]
		So(f.Env(), ShouldEqual, "LESSONTRACK_BACKEND_BASE_URL")
	})
}

func TestFieldJSON(t *testing.T) {
	Convey("Given a registered field", t, func() {
		_ = Setup()
		f := Default[key.TrackingCheckInterval]

		Convey("Type names the default value type", func() {
			So(f.Type(), ShouldEqual, "int")
		})

		Convey("MarshalJSON reports the current and the default value", func() {
			viper.Set(key.TrackingCheckInterval, 7)
			Reset(func() { viper.Set(key.TrackingCheckInterval, 5) })

			var decoded map[string]any
			So(json.Unmarshal(lo.Must(f.MarshalJSON()), &decoded), ShouldBeNil)
			So(decoded["value"], ShouldEqual, float64(7))
			So(decoded["default"], ShouldEqual, float64(5))
			So(decoded["env"], ShouldEqual, "LESSONTRACK_TRACKING_CHECK_INTERVAL")
		})
	})
}

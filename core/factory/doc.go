// Package factory instantiates pluggable modules, such as metrics sinks, from
// configuration entries of the form {type, conf}.
//
//	reg := factory.NewRegistry[metrics.Sink]()
//	_ = reg.Register("influx", func(conf map[string]any) (metrics.Sink, error) {
//		var c struct {
//			URL    string `json:"url"`
//			Bucket string `json:"bucket"`
//		}
//		if err := factory.Decode(conf, &c); err != nil {
//			return nil, err
//		}
//		return newInflux(c.URL, c.Bucket), nil
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: raw})
package factory

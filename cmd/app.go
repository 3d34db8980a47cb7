package cmd

import (
	"github.com/urfave/cli/v2"
)

func windowFlags(defaultWindow string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "window",
			Usage: "today, previous_day, this_month, previous_month, last_<n>h, last_<n>d or custom:<start>/<end>",
			Value: defaultWindow,
		},
		&cli.StringFlag{
			Name:  "bucket",
			Usage: "hour or day, defaults by window length",
		},
	}
}

// NewApp returns the command line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "shelly-energy-analyzer",
		Usage: "summaries, exports and notifications for shelly energy meters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the http api, live feed and scheduled notifications",
				Action: ServeCommand,
			},
			{
				Name:   "summary",
				Usage:  "print device summaries",
				Action: SummaryCommand,
				Flags: append(windowFlags("previous_day"),
					&cli.StringFlag{Name: "device", Usage: "device key, all devices when empty"},
					&cli.StringFlag{Name: "detail", Value: "detailed"},
					&cli.StringFlag{Name: "format", Value: "text", Usage: "text or json"},
				),
			},
			{
				Name:   "export",
				Usage:  "export the buckets or the invoice of a device",
				Action: ExportCommand,
				Flags: append(windowFlags("previous_month"),
					&cli.StringFlag{Name: "device", Required: true},
					&cli.StringFlag{Name: "format", Value: "csv", Usage: "csv or invoice"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "-"},
				),
			},
			{
				Name:   "import",
				Usage:  "copy csv samples into postgres",
				Action: ImportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "device", Usage: "device key, all devices when empty"},
					&cli.StringFlag{Name: "window", Value: "last_3650d"},
				},
			},
		},
	}
}

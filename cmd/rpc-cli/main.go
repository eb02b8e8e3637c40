package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkideal/cli"
	clix "github.com/mkideal/cli/ext"
	"go.uber.org/zap"
)

const errRequiredArgument = "required arguments are missing: '%s'"

type argv struct {
	cli.Helper
	*zap.Logger

	Debug      bool          `cli:"d,debug" usage:"debug output"`
	ServerMode bool          `cli:"s,server" usage:"start server instead of client"`
	ConfigFile string        `cli:"c,config" usage:"config file (yaml, json or toml)"`
	Op         string        `cli:"op" usage:"operation selector" dft:"echo"`
	Notify     bool          `cli:"n,notify" usage:"send a notification instead of a call"`
	Input      []string      `cli:"i,input" usage:"string input, '-' (STDIN) or @path/to/file"`
	DataFormat string        `cli:"data-format" usage:"payload format [raw|json|cbor]; json input is converted for cbor" dft:"raw"`
	Encoding   string        `cli:"e,encoding" usage:"wire encoding [binary|text]" dft:"binary"`
	Setup      string        `cli:"setup" usage:"handshake payload: string input or @path/to/file"`
	Ops        int           `cli:"ops" usage:"operation count" dft:"1"`
	Timeout    clix.Duration `cli:"timeout" name:"duration" usage:"call timeout" dft:"30s"`
	Reconnect  bool          `cli:"reconnect" usage:"reconnect after the connection is lost"`
	Retry      bool          `cli:"retry" usage:"retry the first connect with backoff"`
	Subscribe  []string      `cli:"subscribe" usage:"print notifications for these selectors ('*' for all)"`
	Wait       clix.Duration `cli:"wait" name:"duration" usage:"keep the client open for notifications after the calls"`
	Metrics    string        `cli:"metrics" usage:"serve prometheus metrics on this address, or on the websocket endpoint with 'ws'"`
}

func main() {
	os.Exit(cli.Run(new(argv), func(cmdline *cli.Context) (err error) {
		args := cmdline.Argv().(*argv)
		if err = args.configureLogging(); err != nil {
			return
		}
		defer func() {
			_ = args.Logger.Sync()
		}()

		if len(cmdline.Args()) == 0 {
			err = fmt.Errorf(errRequiredArgument, "URI")
			return
		}

		cfg, err := loadConfig(args, func(flag string) bool {
			return cmdline.IsSet(flag)
		})
		if err != nil {
			return
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		r := &runner{
			argv:   args,
			cfg:    cfg,
			uri:    cmdline.Args()[0],
			logger: args.Logger,
			out:    os.Stdout,
		}
		if args.ServerMode {
			return r.runServer(ctx)
		}
		return r.runClient(ctx)
	}, "CLI for the rpc transport."))
}

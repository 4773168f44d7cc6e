package main

import (
	"courtdata-backend/cmd/crawlerd/commands"
	"courtdata-backend/lib/osutil"
)

func main() {
	ctx := osutil.SignalContext()
	commands.ExecuteContext(ctx)
}

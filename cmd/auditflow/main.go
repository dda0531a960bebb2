// Command auditflow runs the audit assistant as an HTTP service or drives
// it from the command line.
package main

func main() {
	Execute()
}

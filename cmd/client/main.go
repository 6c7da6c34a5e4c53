// The client command is a thin terminal front-end for the chat relay. It
// sends raw lines typed by the user over the socket and runs a concurrent
// read loop printing every line the server sends. It owns no protocol state
// beyond string formatting of the command shapes.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("Connected to server at %s\n", *addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Printf("Received: %s\n", scanner.Text())
		}
		fmt.Println("Server closed the connection")
	}()

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		line := stdin.Text()
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			fmt.Printf("Failed to send message: %v\n", err)
			break
		}
		if line == "@exit" {
			break
		}
	}

	conn.Close()
	<-done
	fmt.Println("Disconnected from server")
}

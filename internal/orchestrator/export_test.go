package orchestrator

var TerminalText = terminalText

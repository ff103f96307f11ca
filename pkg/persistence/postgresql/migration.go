package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				goal_id VARCHAR(255) NOT NULL,
				goal_type VARCHAR(255) NOT NULL,
				state VARCHAR(50) NOT NULL CHECK (state IN ('not_started', 'running', 'completed', 'failed')),
				failed_stage VARCHAR(255),
				error_message TEXT,
				work_directory TEXT NOT NULL,
				record JSONB NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_goal_id ON executions(goal_id);
			CREATE INDEX idx_executions_state ON executions(state);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
		`,
	}
}
